package tgui

import kit "remindbot/internal/transport"

// Inline is a small builder for inline keyboards.
type Inline struct {
	rows [][]kit.Button
}

func NewInline() *Inline { return &Inline{} }

// Row appends a new row of buttons.
func (i *Inline) Row(btn ...kit.Button) *Inline {
	if len(btn) == 0 {
		return i
	}
	i.rows = append(i.rows, append([]kit.Button(nil), btn...))
	return i
}

// Grid lays buttons out in rows of at most perRow.
func (i *Inline) Grid(perRow int, btn ...kit.Button) *Inline {
	if perRow <= 0 {
		perRow = 5
	}
	for len(btn) > 0 {
		n := min(perRow, len(btn))
		i.Row(btn[:n]...)
		btn = btn[n:]
	}
	return i
}

// Rows returns the keyboard rows.
func (i *Inline) Rows() [][]kit.Button {
	if i == nil {
		return nil
	}
	return i.rows
}

// Btn creates a callback button with raw callback_data. Use Data to build it.
func Btn(text, data string) kit.Button {
	return kit.Button{Text: text, Data: data}
}
