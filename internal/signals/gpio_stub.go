//go:build !linux

package signals

type Board struct {
	Left, Right, Emergency Relay
}

func OpenBoard(Lines, func(Button)) (*Board, error) { return nil, ErrUnsupported }

func (b *Board) Close() error { return nil }
