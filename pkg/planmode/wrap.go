package planmode

import (
	"context"
	"fmt"

	"github.com/harun/coda/pkg/dispatcher"
)

func stringArg(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// Wrap overlays recording handlers onto a dispatcher view. The wrapped
// view validates arguments as usual but never mutates anything: writes,
// edits and commands land in the recorder instead.
func Wrap(view *dispatcher.View, recorder *Recorder) *dispatcher.View {
	return view.WithOverrides(map[string]dispatcher.ToolHandler{
		"write_file": func(_ context.Context, params map[string]interface{}) (interface{}, error) {
			path := stringArg(params, "path")
			seq := recorder.record(Change{
				Kind:    KindWrite,
				Path:    path,
				Content: stringArg(params, "content"),
			})
			return fmt.Sprintf("Planned change #%d: write %s", seq, path), nil
		},
		"edit_file": func(_ context.Context, params map[string]interface{}) (interface{}, error) {
			path := stringArg(params, "path")
			seq := recorder.record(Change{
				Kind:    KindEdit,
				Path:    path,
				OldText: stringArg(params, "old_text"),
				NewText: stringArg(params, "new_text"),
			})
			return fmt.Sprintf("Planned change #%d: edit %s", seq, path), nil
		},
		"exec": func(_ context.Context, params map[string]interface{}) (interface{}, error) {
			command := stringArg(params, "command")
			seq := recorder.record(Change{
				Kind:    KindCommand,
				Command: command,
			})
			return fmt.Sprintf("Planned change #%d: run `%s`", seq, command), nil
		},
	})
}
