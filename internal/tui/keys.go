package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Next         key.Binding
	Decrease     key.Binding
	Increase     key.Binding
	DecreaseMore key.Binding
	IncreaseMore key.Binding
	Healthy      key.Binding
	Depressed    key.Binding
	Baseline     key.Binding
	Overload     key.Binding
	Recovery     key.Binding
	Perturb      key.Binding
	Collapse     key.Binding
	Help         key.Binding
	Quit         key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Next:         key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next control")),
		Decrease:     key.NewBinding(key.WithKeys("left"), key.WithHelp("←/→", "adjust")),
		Increase:     key.NewBinding(key.WithKeys("right")),
		DecreaseMore: key.NewBinding(key.WithKeys("down", "["), key.WithHelp("↓/↑", "adjust ×10")),
		IncreaseMore: key.NewBinding(key.WithKeys("up", "]")),
		Healthy:      key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "healthy")),
		Depressed:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "depressed")),
		Baseline:     key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "baseline")),
		Overload:     key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "overload")),
		Recovery:     key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "recovery")),
		Perturb:      key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "perturb")),
		Collapse:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "collapse")),
		Help:         key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:         key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Decrease, k.Perturb, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Decrease, k.DecreaseMore},
		{k.Healthy, k.Depressed},
		{k.Baseline, k.Overload, k.Recovery},
		{k.Perturb, k.Collapse, k.Help, k.Quit},
	}
}
