// Copyright 2024 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package corelog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// terminalHandler writes human-readable, optionally colored records to
// an io.Writer. Color is enabled automatically when the writer is a
// real terminal (detected via go-isatty) and disabled otherwise (piped
// output, log files), the same heuristic the teacher's log package
// applies to its stderr handler.
type terminalHandler struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewTerminalHandler builds a Handler writing to w. If w is *os.File and
// refers to a terminal, ANSI colors are used (via go-colorable on
// platforms that need console translation); otherwise output is plain.
func NewTerminalHandler(w io.Writer) Handler {
	color := false
	out := w
	if f, ok := w.(*os.File); ok {
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			color = true
			out = colorable.NewColorable(f)
		}
	}
	return &terminalHandler{out: out, color: color}
}

func levelColor(lvl Level, s string) string {
	switch lvl {
	case LevelTrace, LevelDebug:
		return aurora.Gray(12, s).String()
	case LevelInfo:
		return aurora.Green(s).String()
	case LevelWarn:
		return aurora.Yellow(s).String()
	case LevelError:
		return aurora.Red(s).String()
	case LevelCrit:
		return aurora.White(s).BgRed().String()
	default:
		return s
	}
}

func (h *terminalHandler) Log(t time.Time, lvl Level, msg string, ctx []interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	lvlStr := fmt.Sprintf("[%-5s]", lvl.String())
	if h.color {
		lvlStr = levelColor(lvl, lvlStr)
	}
	line := fmt.Sprintf("%s %s %s", t.Format("2006-01-02T15:04:05.000"), lvlStr, msg)
	for i := 0; i+1 < len(ctx); i += 2 {
		line += fmt.Sprintf(" %v=%v", ctx[i], ctx[i+1])
	}
	_, err := fmt.Fprintln(h.out, line)
	return err
}
