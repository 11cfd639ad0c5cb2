package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/jroimartin/gocui"
	"github.com/roffe/kvcan"
	"github.com/roffe/kvcan/pkg/ui"
)

// maxLines bounds the frame view; older lines are dropped in bulk.
const maxLines = 20000

func (mon *monitor) runTUI(ctx context.Context, ch *kvcan.Channel) error {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return err
	}
	g.Cursor = true
	defer g.Close()

	filter := ui.NewInput("filter", "Filter", 0, 10, 30, 60)
	g.SetManagerFunc(func(g *gocui.Gui) error {
		return mon.layout(g, ch, filter)
	})
	if err := mon.keybindings(g); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		g.Update(func(*gocui.Gui) error {
			return gocui.ErrQuit
		})
	}()
	go func() {
		err := mon.read(ctx, ch, func(m *kvcan.Message) {
			line := mon.format(m)
			g.Update(func(g *gocui.Gui) error {
				return mon.appendFrame(g, ch, line)
			})
		})
		if err != nil && err != context.Canceled {
			g.Update(func(g *gocui.Gui) error {
				return mon.logError(g, err)
			})
		}
	}()

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

func (mon *monitor) layout(g *gocui.Gui, ch *kvcan.Channel, filter *ui.Input) error {
	maxX, maxY := g.Size()

	if v, err := g.SetView("info", 0, 0, 30, 9); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Info"
		mon.updateInfo(v, ch)
	}

	if err := filter.Layout(g); err != nil {
		return err
	}

	if v, err := g.SetView("help", 0, 13, 30, 20); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Wrap = true
		v.Title = "Help"
		fmt.Fprintln(v, "<Q, Ctrl-C> Quit")
		fmt.Fprintln(v, "<Space> Autoscroll")
		fmt.Fprintln(v, "<Ctrl-F> Set filter")
		fmt.Fprintln(v, "<C> Clear")
	}

	if v, err := g.SetView("errors", 0, 21, 30, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Wrap = true
		v.Autoscroll = true
		v.Title = "Errors"
	}

	if v, err := g.SetView("frames", 31, 0, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.SelFgColor = gocui.ColorCyan
		v.Autoscroll = true
		v.Highlight = true
		v.Title = "Frames"
		if _, err := g.SetCurrentView("frames"); err != nil {
			return err
		}
	}
	return nil
}

func (mon *monitor) updateInfo(v *gocui.View, ch *kvcan.Channel) {
	frames, shown := mon.counts()
	st := ch.Stats()
	mon.mu.Lock()
	flt := mon.filter
	mon.mu.Unlock()
	v.Clear()
	fmt.Fprintf(v, "frames:   %d\n", frames)
	fmt.Fprintf(v, "shown:    %d\n", shown)
	fmt.Fprintf(v, "errors:   %d\n", st.ErrorFrames)
	fmt.Fprintf(v, "dropped:  %d\n", st.Dropped)
	fmt.Fprintf(v, "overruns: %d\n", st.Overruns)
	fmt.Fprintf(v, "op-mode:  %s\n", ch.OpMode())
	fmt.Fprintf(v, "filter:   %s\n", flt)
}

func (mon *monitor) appendFrame(g *gocui.Gui, ch *kvcan.Channel, line string) error {
	v, err := g.View("frames")
	if err != nil {
		return err
	}
	if len(v.BufferLines()) > maxLines {
		v.Clear()
	}
	fmt.Fprintln(v, line)
	if info, err := g.View("info"); err == nil {
		mon.updateInfo(info, ch)
	}
	return nil
}

func (mon *monitor) logError(g *gocui.Gui, err error) error {
	v, verr := g.View("errors")
	if verr != nil {
		return verr
	}
	fmt.Fprintln(v, err)
	return nil
}

func (mon *monitor) applyFilter(g *gocui.Gui, v *gocui.View) error {
	f, err := ui.ParseFilter(strings.TrimSpace(ui.Buffer(v)))
	if err != nil {
		return mon.logError(g, err)
	}
	mon.setFilter(f)
	_, err = g.SetCurrentView("frames")
	return err
}

func (mon *monitor) keybindings(g *gocui.Gui) error {
	quit := func(*gocui.Gui, *gocui.View) error {
		return gocui.ErrQuit
	}
	for _, kb := range []struct {
		view    string
		key     any
		handler func(*gocui.Gui, *gocui.View) error
	}{
		{"", gocui.KeyCtrlC, quit},
		{"frames", 'q', quit},
		{"frames", gocui.KeyCtrlF, func(g *gocui.Gui, v *gocui.View) error {
			_, err := g.SetCurrentView("filter")
			return err
		}},
		{"filter", gocui.KeyEnter, mon.applyFilter},
		{"frames", gocui.KeySpace, func(g *gocui.Gui, v *gocui.View) error {
			v.Autoscroll = !v.Autoscroll
			return nil
		}},
		{"frames", 'c', func(g *gocui.Gui, v *gocui.View) error {
			v.Clear()
			v.Autoscroll = true
			return v.SetOrigin(0, 0)
		}},
		{"frames", gocui.KeyArrowUp, func(g *gocui.Gui, v *gocui.View) error {
			v.Autoscroll = false
			v.MoveCursor(0, -1, false)
			return nil
		}},
		{"frames", gocui.KeyArrowDown, func(g *gocui.Gui, v *gocui.View) error {
			v.MoveCursor(0, 1, false)
			return nil
		}},
	} {
		if err := g.SetKeybinding(kb.view, kb.key, gocui.ModNone, kb.handler); err != nil {
			return err
		}
	}
	return nil
}
