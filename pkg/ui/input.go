package ui

import "github.com/jroimartin/gocui"

// Input is a single line editable view.
type Input struct {
	Name      string
	Title     string
	X, Y      int
	W         int
	MaxLength int
	// OnChange is called with the buffer after every edit.
	OnChange func(string)
}

func NewInput(name, title string, x, y, w, maxLength int) *Input {
	return &Input{Name: name, Title: title, X: x, Y: y, W: w, MaxLength: maxLength}
}

func (i *Input) Layout(g *gocui.Gui) error {
	v, err := g.SetView(i.Name, i.X, i.Y, i.X+i.W, i.Y+2)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = i.Title
		v.Editor = i
		v.Editable = true
	}
	return nil
}

func (i *Input) Edit(v *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) {
	cx, _ := v.Cursor()
	ox, _ := v.Origin()
	limit := ox+cx+1 > i.MaxLength
	switch {
	case ch != 0 && mod == 0 && !limit:
		v.EditWrite(ch)
	case key == gocui.KeySpace && !limit:
		v.EditWrite(' ')
	case key == gocui.KeyBackspace || key == gocui.KeyBackspace2:
		v.EditDelete(true)
	case key == gocui.KeyArrowLeft:
		v.MoveCursor(-1, 0, false)
	case key == gocui.KeyArrowRight:
		v.MoveCursor(1, 0, false)
	default:
		return
	}
	if i.OnChange != nil {
		i.OnChange(Buffer(v))
	}
}

// Buffer returns the first line of v without the trailing newline.
func Buffer(v *gocui.View) string {
	line, err := v.Line(0)
	if err != nil {
		return ""
	}
	return line
}
