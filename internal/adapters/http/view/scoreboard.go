// Package view holds the HTML fragments rendered by the server.
package view

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/okian/circle/internal/domain/ledger"
)

// ScoreboardID is the element id the client swaps the fragment into.
const ScoreboardID = "scores"

// Scoreboard renders h as the score panel: each score followed by "%",
// separated by line breaks.
func Scoreboard(h ledger.History) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div id="`+ScoreboardID+`">`); err != nil {
			return err
		}
		for i, s := range h {
			if i > 0 {
				if _, err := io.WriteString(w, "<br>"); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, templ.EscapeString(strconv.Itoa(s))+"%"); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</div>")
		return err
	})
}
