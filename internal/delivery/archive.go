package delivery

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/pipeline/phases"
)

// ArchiveFileName is the download attachment name for a target language.
func ArchiveFileName(tgtLang string) string {
	return fmt.Sprintf("talkdub_%s.zip", tgtLang)
}

// BuildArchive streams a delivery zip for the job's artifacts in outputDir.
// Artifacts missing on disk are skipped rather than failing the download.
func BuildArchive(w io.Writer, outputDir string, j *job.Job) error {
	zw := zip.NewWriter(w)

	artifacts := []string{
		phases.DubFileName(j.Languages.Tgt),
		phases.ManifestFileName,
		phases.SegmentsFileName(j.Languages.Tgt),
	}
	for _, name := range artifacts {
		if err := addFile(zw, filepath.Join(outputDir, name), name); err != nil {
			return fmt.Errorf("delivery: archive %s: %w", name, err)
		}
	}

	if err := addText(zw, "UPLOAD_GUIDE.txt", UploadGuide(j)); err != nil {
		return fmt.Errorf("delivery: archive upload guide: %w", err)
	}
	if err := addText(zw, "README.txt", Readme(j)); err != nil {
		return fmt.Errorf("delivery: archive readme: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("delivery: close archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}

func addText(zw *zip.Writer, name, content string) error {
	entry, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.WriteString(entry, content)
	return err
}
