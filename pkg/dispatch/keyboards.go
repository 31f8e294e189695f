package dispatch

import (
	"jobybot/pkg/config"
	"jobybot/pkg/fsm"
	"jobybot/pkg/ports/botport"
)

const mainMenuColumns = 2

// keyboards holds the rendered keyboard for every menu tag.
type keyboards struct {
	main        *botport.Keyboard
	phoneChoice *botport.Keyboard
	cancel      *botport.Keyboard
	none        *botport.Keyboard
}

func newKeyboards(menu config.MenuConfig) keyboards {
	main := &botport.Keyboard{Placeholder: menu.Placeholder}
	var row []botport.Button
	for _, b := range menu.Buttons {
		row = append(row, botport.Button{Text: b.Label})
		if len(row) == mainMenuColumns {
			main.Rows = append(main.Rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		main.Rows = append(main.Rows, row)
	}

	return keyboards{
		main: main,
		phoneChoice: &botport.Keyboard{Rows: [][]botport.Button{
			{{Text: menu.ShareContact, RequestContact: true}},
			{{Text: menu.TypeManually}},
			{{Text: menu.Cancel}},
		}},
		cancel: &botport.Keyboard{Rows: [][]botport.Button{{{Text: menu.Cancel}}}},
		none:   botport.RemoveKeyboard(),
	}
}

func (k keyboards) forTag(tag fsm.MenuTag) *botport.Keyboard {
	switch tag {
	case fsm.MenuMain:
		return k.main
	case fsm.MenuPhoneChoice:
		return k.phoneChoice
	case fsm.MenuCancel:
		return k.cancel
	default:
		return k.none
	}
}
