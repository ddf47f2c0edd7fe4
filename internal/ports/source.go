package ports

// LineSource is a pull-based, finite sequence of decoded text lines.
// Next returns io.EOF once the source is exhausted; any other error is a
// transport failure.
type LineSource interface {
	Next() (string, error)
	Close() error
}
