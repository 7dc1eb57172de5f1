package job

import "testing"

func TestStatus_IsValid(t *testing.T) {
	t.Parallel()
	for _, s := range []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusPaused, StatusExpired} {
		if !s.IsValid() {
			t.Errorf("Status(%q).IsValid() = false", s)
		}
	}
	if Status("RUNNING").IsValid() {
		t.Error("Status(RUNNING).IsValid() = true, want false")
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusProcessing, true},
		{StatusQueued, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPaused, true},
		{StatusPaused, StatusProcessing, true},
		{StatusCompleted, StatusExpired, true},
		{StatusCompleted, StatusProcessing, false},
		{StatusFailed, StatusProcessing, false},
		{StatusExpired, StatusQueued, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s → %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	t.Parallel()
	terminal := map[Status]bool{
		StatusQueued:     false,
		StatusProcessing: false,
		StatusPaused:     false,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusExpired:    true,
	}
	for s, want := range terminal {
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}

func TestSegID_ZeroPadded(t *testing.T) {
	t.Parallel()
	tests := []struct {
		i    int
		want string
	}{
		{0, "seg_0000"},
		{7, "seg_0007"},
		{42, "seg_0042"},
		{1234, "seg_1234"},
	}
	for _, tt := range tests {
		if got := SegID(tt.i); got != tt.want {
			t.Errorf("SegID(%d) = %q, want %q", tt.i, got, tt.want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	j := New("abc", Source{Platform: "youtube", VideoID: "dQw4w9WgXcQ", URL: "https://youtu.be/dQw4w9WgXcQ"}, Languages{Src: "ja", Tgt: "en"}, "u@x")
	if j.Status != StatusQueued {
		t.Errorf("Status = %s, want QUEUED", j.Status)
	}
	if j.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", j.SchemaVersion, SchemaVersion)
	}
	if j.Params != DefaultParams() {
		t.Errorf("Params = %+v, want defaults", j.Params)
	}
	if j.CreatedAt.IsZero() || j.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
}
