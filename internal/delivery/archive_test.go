package delivery

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/talkdub-lab/talkdub/internal/job"
)

func archiveJob() *job.Job {
	j := job.New("job-arch-1", job.Source{
		Platform: "youtube",
		VideoID:  "dQw4w9WgXcQ",
		URL:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}, job.Languages{Src: "ja", Tgt: "en"}, "user@example.com")
	expires := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	j.ExpiresAt = &expires
	return j
}

func TestArchiveFileName(t *testing.T) {
	if got := ArchiveFileName("en"); got != "talkdub_en.zip" {
		t.Errorf("ArchiveFileName(en) = %q, want %q", got, "talkdub_en.zip")
	}
}

func TestBuildArchiveContents(t *testing.T) {
	outputDir := t.TempDir()
	files := map[string]string{
		"dub_en.wav":       "RIFF-fake-audio",
		"manifest.json":    `{"job_id":"job-arch-1"}`,
		"segments_en.json": `[]`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(outputDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := BuildArchive(&buf, outputDir, archiveJob()); err != nil {
		t.Fatalf("BuildArchive() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}

	entries := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		entries[f.Name] = string(data)
	}

	for name, want := range files {
		if entries[name] != want {
			t.Errorf("entry %s = %q, want %q", name, entries[name], want)
		}
	}
	if !strings.Contains(entries["UPLOAD_GUIDE.txt"], "studio.youtube.com") {
		t.Errorf("UPLOAD_GUIDE.txt missing YouTube Studio link: %q", entries["UPLOAD_GUIDE.txt"])
	}
	if !strings.Contains(entries["README.txt"], "job-arch-1") {
		t.Errorf("README.txt missing job id: %q", entries["README.txt"])
	}
	if !strings.Contains(entries["README.txt"], "72 hours") {
		t.Errorf("README.txt missing retention note")
	}
}

func TestBuildArchiveSkipsMissingArtifacts(t *testing.T) {
	outputDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(outputDir, "dub_en.wav"), []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var buf bytes.Buffer
	if err := BuildArchive(&buf, outputDir, archiveJob()); err != nil {
		t.Fatalf("BuildArchive() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{"dub_en.wav", "UPLOAD_GUIDE.txt", "README.txt"}
	if len(names) != len(want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("entry[%d] = %q, want %q", i, names[i], name)
		}
	}
}

func TestReadmeLanguageNames(t *testing.T) {
	readme := Readme(archiveJob())
	if !strings.Contains(readme, "Japanese -> English") {
		t.Errorf("Readme missing language line: %q", readme)
	}
}
