package workflow

import (
	"path/filepath"
	"testing"

	"layerforge/internal/config"
)

func TestNames(t *testing.T) {
	layout := config.NewLayout("/work")
	n := NewNames(layout, "todo_app")

	cases := []struct {
		got  string
		want string
	}{
		{n.Input(), "/work/prompt/input_todo_app.md"},
		{n.Request(), "/work/requirements/request_todo_app.md"},
		{n.Definition(), "/work/requirements/def_todo_app.md"},
		{n.Manifest(), "/work/requirements/structure_todo_app.md"},
		{n.Code("src/app.py"), "/work/generated/todo_app/src/app.py"},
		{n.Requirement("src/app.py"), "/work/generated/todo_app/src/app_requirement.md"},
		{n.Requirement("main.go"), "/work/generated/todo_app/main_requirement.md"},
		{n.InfoStructure("src/app.py"), "/work/generated/todo_app/src/info_structure.md"},
		{n.InfoStructure("main.go"), "/work/generated/todo_app/info_structure.md"},
	}
	for _, tc := range cases {
		if tc.got != filepath.FromSlash(tc.want) {
			t.Errorf("got %s, want %s", tc.got, tc.want)
		}
	}
}
