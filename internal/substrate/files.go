// Package substrate provides the shared permission-scoped file memory the
// cognitive roles act against. Every file is simultaneously a human-editable
// markdown document and durable system state, so reads always parse fresh from
// disk and mutations always rewrite the full text.
package substrate

// FileType identifies one logical substrate file.
type FileType string

// The substrate files.
const (
	FilePlan         FileType = "plan"
	FileDrives       FileType = "drives"
	FileProgress     FileType = "progress"
	FileConversation FileType = "conversation"
	FileAudit        FileType = "audit"
	FileEscalations  FileType = "escalations"
	FileProposals    FileType = "proposals"
	FileInbox        FileType = "inbox"
)

// All returns every known file type in stable order.
func All() []FileType {
	return []FileType{
		FilePlan,
		FileDrives,
		FileProgress,
		FileConversation,
		FileAudit,
		FileEscalations,
		FileProposals,
		FileInbox,
	}
}

// Valid reports whether f names a known substrate file.
func (f FileType) Valid() bool {
	for _, known := range All() {
		if f == known {
			return true
		}
	}
	return false
}

// Filename returns the on-disk name for f.
func (f FileType) Filename() string {
	return string(f) + ".md"
}
