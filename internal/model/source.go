package model

// Path represents a file system path.
type Path string

// SourceFile identifies one Python test file under analysis.
type SourceFile struct {
	// FullPath is the absolute or working-directory-relative path used for IO.
	FullPath Path
	// ShortPath is the path relative to the scanned root, used for display.
	ShortPath Path
	// Hash is a stable fingerprint of the file contents.
	Hash string
}

// FileDecision pairs a source file with its reconciled module proposal and
// any validation warnings. It is the record streamed through the workflow
// and spilled to disk while large trees are processed.
type FileDecision struct {
	Source   SourceFile
	Module   *ModuleProposal
	Warnings []string
}
