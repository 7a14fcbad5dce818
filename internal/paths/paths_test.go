package paths

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "directory paths",
			text: "Create src/api/users.ts and update ./cmd/server/main.go.",
			want: []string{"src/api/users.ts", "cmd/server/main.go"},
		},
		{
			name: "root config files",
			text: "Add a script to package.json, then edit tsconfig.json and the Dockerfile",
			want: []string{"package.json", "tsconfig.json", "dockerfile"},
		},
		{
			name: "case-insensitive dedupe",
			text: "Edit SRC/App.tsx, then src/app.tsx again",
			want: []string{"src/app.tsx"},
		},
		{
			name: "root file inside a directory path is one mention",
			text: "Update web/package.json",
			want: []string{"web/package.json"},
		},
		{
			name: "urls and endpoints are ignored",
			text: "See https://example.com/docs/a.html and call GET /api/users",
			want: nil,
		},
		{
			name: "no extension is not a path",
			text: "Work in src/components",
			want: nil,
		},
		{
			name: "quoted and parenthesized",
			text: "(see `lib/util.py`) and \"config/app.yaml\":",
			want: []string{"lib/util.py", "config/app.yaml"},
		},
		{
			name: "config with suffix",
			text: "vite.config.ts and go.mod and .env.local",
			want: []string{"vite.config.ts", "go.mod", ".env.local"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMentions_Offsets(t *testing.T) {
	text := "go.mod then src/a.go"
	ms := Mentions(text)
	if len(ms) != 2 {
		t.Fatalf("Mentions() = %+v, want 2", ms)
	}
	if ms[0].Path != "go.mod" || ms[0].Start != 0 || ms[0].End != 6 {
		t.Errorf("first mention = %+v", ms[0])
	}
	if text[ms[1].Start:ms[1].End] != "src/a.go" {
		t.Errorf("second mention span = %q", text[ms[1].Start:ms[1].End])
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"./Src/A.ts":   "src/a.ts",
		`src\win\a.cs`: "src/win/a.cs",
		"plain.go":     "plain.go",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSensitiveConfig(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"package.json", true},
		{"web/package.json", true},
		{"tsconfig.build.json", true},
		{"go.mod", true},
		{".env.production", true},
		{"Dockerfile", true},
		{"docker-compose.dev.yml", true},
		{"next.config.mjs", true},
		{"src/api/users.ts", false},
		{"README.md", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsSensitiveConfig(tt.path); got != tt.want {
				t.Errorf("IsSensitiveConfig(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
