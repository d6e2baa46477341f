package storage

import (
	"fmt"
)

// Canonical artifact names within a project directory. Stages open these
// by name; the manifest in the project record stores the same relative paths.
const (
	FileConfig         = "config.json"
	FileScreen         = "screen.mp4"
	FileWebcam         = "webcam.mp4"
	FileCombined       = "combined.webm"
	FileOriginal       = "original.mp4"
	FileSegments       = "segments.json"
	FileNoSilence      = "nosilence.mp4"
	FileScreenTrimmed  = "screennosilence.mp4"
	FileWebcamTrimmed  = "webcamnosilence.mp4"
	FileTranscription  = "transcription.json"
	FileTranscriptText = "transcription.txt"
	FileIllustrated    = "illustrated.mp4"
	FileSEO            = "seo.json"
	FileThumbnail      = "thumbnail.png"
	FileSchedule       = "schedule.json"
	DirShorts          = "shorts"
	DirBroll           = "broll"
	DirTemp            = "temp"
)

// Raw upload base names. The upload handler keeps the client's extension;
// the convert stage finds them by prefix and deletes them once normalized.
const (
	RawScreenPrefix = "raw_screen"
	RawWebcamPrefix = "raw_webcam"
)

// rebootSeedSet lists the files that survive a project reboot: the raw
// normalized sources and the compositing config. Everything else is a
// derived artifact the rebooted chain regenerates.
var rebootSeedSet = map[string]bool{
	FileConfig:   true,
	FileScreen:   true,
	FileWebcam:   true,
	FileCombined: true,
}

// ProjectStore manages the per-project artifact directories under a
// common base. Each project gets its own Sandbox keyed by folder name.
type ProjectStore struct {
	base *Sandbox
}

// NewProjectStore creates a ProjectStore rooted at the given base directory.
func NewProjectStore(baseDir string) (*ProjectStore, error) {
	base, err := NewSandbox(baseDir)
	if err != nil {
		return nil, fmt.Errorf("creating project store: %w", err)
	}
	return &ProjectStore{base: base}, nil
}

// BaseDir returns the absolute path of the store's base directory.
func (ps *ProjectStore) BaseDir() string {
	return ps.base.BaseDir()
}

// Project returns the Sandbox for one project's artifact directory,
// creating the directory if needed. The folder name is validated against
// traversal by the underlying sandbox.
func (ps *ProjectStore) Project(folderName string) (*Sandbox, error) {
	if folderName == "" {
		return nil, fmt.Errorf("folder name is empty")
	}
	sandbox, err := ps.base.SubSandbox(folderName)
	if err != nil {
		return nil, fmt.Errorf("opening project directory %q: %w", folderName, err)
	}
	return sandbox, nil
}

// Exists reports whether a project directory exists.
func (ps *ProjectStore) Exists(folderName string) (bool, error) {
	return ps.base.Exists(folderName)
}

// List returns the folder names of all project directories in the store.
func (ps *ProjectStore) List() ([]string, error) {
	entries, err := ps.base.List(".")
	if err != nil {
		return nil, fmt.Errorf("listing project store: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// Delete removes a project's artifact directory entirely.
func (ps *ProjectStore) Delete(folderName string) error {
	if folderName == "" {
		return fmt.Errorf("folder name is empty")
	}
	return ps.base.RemoveAll(folderName)
}

// Reboot trims a project directory back to its seed set: config.json and
// the normalized raw sources. Derived artifacts, subdirectories, and temp
// files are removed so the next full chain starts from a clean slate.
func (ps *ProjectStore) Reboot(folderName string) error {
	sandbox, err := ps.Project(folderName)
	if err != nil {
		return err
	}

	entries, err := sandbox.List(".")
	if err != nil {
		return fmt.Errorf("listing project directory: %w", err)
	}

	for _, entry := range entries {
		if rebootSeedSet[entry.Name()] {
			continue
		}
		if err := sandbox.RemoveAll(entry.Name()); err != nil {
			return fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
	}
	return nil
}
