package session

const (
	ReadOnlyNotice   = "You don't have permission to edit this document."
	SavedNotice      = "Document saved successfully!"
	SaveFailedNotice = "Failed to save document."
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Notice is a transient message for the user, shown and then dismissed.
type Notice struct {
	Level Level
	Text  string
}

type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}
