package cli

import (
	"fmt"
	"io"

	"jscrambler-client/internal/project"

	"github.com/fatih/color"
)

type palette struct {
	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

func newPalette(enabled bool) palette {
	if !enabled {
		noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
		return palette{green: noColor, yellow: noColor, cyan: noColor, gray: noColor, red: noColor}
	}
	return palette{
		green:  color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow: color.New(color.FgYellow).SprintFunc(),
		cyan:   color.New(color.FgCyan).SprintFunc(),
		gray:   color.New(color.FgHiBlack).SprintFunc(),
		red:    color.New(color.FgRed).SprintFunc(),
	}
}

// reporter prints workflow progress on the console.
type reporter struct {
	out    io.Writer
	silent bool
	dest   string
	c      palette
}

var _ project.Observer = (*reporter)(nil)

func (r *reporter) OnStateChange(state project.State, projectID string) {
	if r.silent {
		return
	}
	switch state {
	case project.StateUploading:
		fmt.Fprintln(r.out, r.c.cyan("Uploading sources..."))
	case project.StatePolling:
		fmt.Fprintf(r.out, "%s %s\n", r.c.gray("Waiting for project"), projectID)
	case project.StateDownloading:
		fmt.Fprintln(r.out, r.c.cyan("Downloading project..."))
	case project.StateExtracting:
		if r.dest != "" {
			fmt.Fprintf(r.out, "%s %s\n", r.c.cyan("Extracting to"), r.dest)
		}
	case project.StateDeleting:
		fmt.Fprintf(r.out, "%s %s\n", r.c.yellow("Deleting project"), projectID)
	case project.StateDone:
		fmt.Fprintln(r.out, r.c.green("Done."))
	}
}
