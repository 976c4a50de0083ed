package parser

// Checkpoint is the parser state needed to resume a log from a committed
// match boundary. Match state is never carried over: resuming is only valid
// at a CREATE_GAME line, where the next match starts from an empty context.
//
// The detected line format is the only thing that survives, so an output log
// resumed mid-file keeps rejecting lines of the other grammar.
type Checkpoint struct {
	Format Format
}

// Checkpoint returns the resumable state of the parser.
func (p *Parser) Checkpoint() Checkpoint {
	return Checkpoint{Format: p.format}
}

// RestoreCheckpoint reinitialises a freshly constructed Parser. It must be
// called before any line is fed.
func (p *Parser) RestoreCheckpoint(c Checkpoint) {
	p.format = c.Format
}
