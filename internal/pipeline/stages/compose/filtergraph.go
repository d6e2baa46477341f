package compose

import (
	"fmt"
	"strings"

	"github.com/vibeacademy/vidarr/internal/models"
)

// Output canvas dimensions.
const (
	canvasWidth  = 1920
	canvasHeight = 1080
)

// Screen picture-in-picture geometry for the webcam_only layout.
const (
	pipWidth  = 800
	pipHeight = 450
	pipMargin = 20
)

// params is the resolved compositing geometry for one project.
type params struct {
	layout      string
	webcamX     int
	webcamY     int
	webcamSize  int
	shape       string
	borderColor string
	borderWidth int
	switches    []models.LayoutSwitch
}

// innerSize is the webcam video size inside the border ring.
func (p params) innerSize() int {
	return p.webcamSize - 2*p.borderWidth
}

// maskAlpha returns the geq alpha expression cutting a square frame of
// side n down to the given shape. Circle is a plain disc; rounded is a
// superellipse of order 10, which reads as a squircle.
func maskAlpha(shape string, n int) string {
	// The expressions sit inside quoted filter arguments, so commas need
	// no escaping.
	c := float64(n) / 2
	switch shape {
	case "rounded":
		return fmt.Sprintf("if(lt(pow(abs(X-%.1f),10)+pow(abs(Y-%.1f),10),pow(%.1f,10)),255,0)", c, c, c)
	default: // circle
		return fmt.Sprintf("if(lt((X-%.1f)^2+(Y-%.1f)^2,%.1f^2),255,0)", c, c, c)
	}
}

// webcamCrop cuts the widescreen webcam down to a centered square before
// any scaling, so the badge never distorts the face.
const webcamCrop = "crop='min(iw,ih)':'min(iw,ih)'"

// maskedBadge returns the filtergraph fragment producing [badge]: the
// webcam cropped to a centered square, scaled into its border ring, and
// masked to the configured shape.
func maskedBadge(p params) string {
	inner := p.innerSize()
	if p.shape == "square" {
		// A square badge needs no alpha mask; pad paints the border.
		return fmt.Sprintf(
			"[1:v]%s,scale=%d:%d,setsar=1,pad=%d:%d:%d:%d:color=%s[badge]",
			webcamCrop, inner, inner, p.webcamSize, p.webcamSize, p.borderWidth, p.borderWidth, p.borderColor)
	}

	rgb := "geq=r='r(X,Y)':g='g(X,Y)':b='b(X,Y)'"
	return strings.Join([]string{
		fmt.Sprintf("color=c=%s:s=%dx%d[disksrc]", p.borderColor, p.webcamSize, p.webcamSize),
		fmt.Sprintf("[disksrc]format=rgba,%s:a='%s'[disk]", rgb, maskAlpha(p.shape, p.webcamSize)),
		fmt.Sprintf("[1:v]%s,scale=%d:%d,setsar=1,format=rgba,%s:a='%s'[cam]",
			webcamCrop, inner, inner, rgb, maskAlpha(p.shape, inner)),
		fmt.Sprintf("[disk][cam]overlay=%d:%d:shortest=1[badge]", p.borderWidth, p.borderWidth),
	}, ";")
}

// interval is a closed time range in seconds.
type interval struct {
	start, end float64
}

// enableExpr renders intervals as an overlay enable expression.
func enableExpr(intervals []interval) string {
	terms := make([]string, 0, len(intervals))
	for _, iv := range intervals {
		terms = append(terms, fmt.Sprintf("between(t,%g,%g)", iv.start, iv.end))
	}
	return strings.Join(terms, "+")
}

// layoutIntervals splits [0, duration] into overlay and webcam_only
// periods. The recording always starts in the overlay layout; each switch
// flips to the named layout at its timestamp.
func layoutIntervals(switches []models.LayoutSwitch, duration float64) (overlay, webcamOnly []interval) {
	current := "overlay"
	cursor := 0.0
	flush := func(until float64) {
		if until <= cursor {
			return
		}
		iv := interval{cursor, until}
		if current == "webcam_only" {
			webcamOnly = append(webcamOnly, iv)
		} else {
			overlay = append(overlay, iv)
		}
		cursor = until
	}
	for _, sw := range switches {
		if sw.Timestamp <= 0 || sw.Timestamp >= duration {
			continue
		}
		flush(sw.Timestamp)
		current = sw.Layout
	}
	flush(duration)
	return overlay, webcamOnly
}

// overlayGraph builds the full filtergraph for the overlay layout,
// including time-gated layout switches when present: webcam_only windows
// show the webcam fullscreen with the screen riding bottom-right as a
// bordered thumbnail. Input 0 is the screen, input 1 the webcam; the
// composed video lands in [vout].
func overlayGraph(p params, duration float64) string {
	parts := []string{
		fmt.Sprintf("[0:v]scale=%d:%d:flags=lanczos,setsar=1[scr]", canvasWidth, canvasHeight),
		maskedBadge(p),
	}

	if len(p.switches) == 0 {
		parts = append(parts, fmt.Sprintf("[scr][badge]overlay=%d:%d:eof_action=pass[vout]", p.webcamX, p.webcamY))
		return strings.Join(parts, ";")
	}

	overlayIv, webcamIv := layoutIntervals(p.switches, duration)
	webcamEnable := enableExpr(webcamIv)
	parts = append(parts,
		fmt.Sprintf("[scr][badge]overlay=%d:%d:eof_action=pass:enable='%s'[vbadge]",
			p.webcamX, p.webcamY, enableExpr(overlayIv)),
		fmt.Sprintf("[1:v]scale=%d:%d:flags=lanczos,setsar=1[camfull]", canvasWidth, canvasHeight),
		fmt.Sprintf("[0:v]scale=%d:%d:flags=lanczos,drawbox=x=0:y=0:w=iw:h=ih:color=%s:t=%d[scrmini]",
			pipWidth, pipHeight, p.borderColor, p.borderWidth),
		fmt.Sprintf("[vbadge][camfull]overlay=0:0:eof_action=pass:enable='%s'[vfull]", webcamEnable),
		fmt.Sprintf("[vfull][scrmini]overlay=%d:%d:eof_action=pass:enable='%s'[vout]",
			canvasWidth-pipWidth-pipMargin, canvasHeight-pipHeight-pipMargin, webcamEnable),
	)
	return strings.Join(parts, ";")
}

// webcamOnlyGraph builds the webcam-fullscreen layout: the webcam fills
// the canvas and the screen rides bottom-right as a bordered PiP.
func webcamOnlyGraph(p params) string {
	return strings.Join([]string{
		fmt.Sprintf("[1:v]scale=%d:%d:flags=lanczos,setsar=1[cam]", canvasWidth, canvasHeight),
		fmt.Sprintf("[0:v]scale=%d:%d,drawbox=x=0:y=0:w=iw:h=ih:color=%s:t=%d[pip]",
			pipWidth, pipHeight, p.borderColor, p.borderWidth),
		fmt.Sprintf("[cam][pip]overlay=W-w-%d:H-h-%d:eof_action=pass[vout]", pipMargin, pipMargin),
	}, ";")
}

// sideBySideGraph letterboxes both sources into half-width panes and
// stacks them horizontally.
func sideBySideGraph() string {
	half := canvasWidth / 2
	pane := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		half, canvasHeight, half, canvasHeight)
	return strings.Join([]string{
		fmt.Sprintf("[0:v]%s[left]", pane),
		fmt.Sprintf("[1:v]%s[right]", pane),
		"[left][right]hstack=inputs=2[vout]",
	}, ";")
}
