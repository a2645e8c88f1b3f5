package client

import (
	"errors"
	"testing"
)

func TestProjectSandboxID_AliasPriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sandbox map[string]any
		want    string
		wantErr bool
	}{
		{
			name:    "canonical field",
			sandbox: map[string]any{"sandbox_id": "sb-1", "id": "ignored"},
			want:    "sb-1",
		},
		{
			name:    "id fallback",
			sandbox: map[string]any{"id": "sb-2"},
			want:    "sb-2",
		},
		{
			name:    "camel case fallback",
			sandbox: map[string]any{"sandboxId": "sb-3"},
			want:    "sb-3",
		},
		{
			name:    "non-string values are skipped",
			sandbox: map[string]any{"sandbox_id": 42, "id": "sb-4"},
			want:    "sb-4",
		},
		{
			name:    "nothing resolves",
			sandbox: map[string]any{"vnc_url": "https://example.com"},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			project := Project{Sandbox: tc.sandbox}
			got, err := project.SandboxID()
			if tc.wantErr {
				var resErr *ResolutionError
				if !errors.As(err, &resErr) {
					t.Fatalf("error = %v, want ResolutionError", err)
				}
				if resErr.Field != "sandbox_id" {
					t.Fatalf("ResolutionError.Field = %q, want sandbox_id", resErr.Field)
				}
				return
			}
			if err != nil {
				t.Fatalf("SandboxID returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("SandboxID = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestProjectVNCPassword_NamesFieldOnFailure(t *testing.T) {
	t.Parallel()

	project := Project{Sandbox: map[string]any{"sandbox_id": "sb-1"}}
	_, err := project.VNCPassword()

	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("error = %v, want ResolutionError", err)
	}
	if resErr.Field != "vnc_password" {
		t.Fatalf("ResolutionError.Field = %q, want vnc_password", resErr.Field)
	}
}

func TestMessageContentText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content any
		want    string
	}{
		{"nil", nil, ""},
		{"plain string", "hello", "hello"},
		{"nested object", map[string]any{"role": "assistant"}, `{"role":"assistant"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := Message{Content: tc.content}
			if got := msg.ContentText(); got != tc.want {
				t.Fatalf("ContentText() = %q, want %q", got, tc.want)
			}
		})
	}
}
