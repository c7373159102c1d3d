package monitor

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// CLIMonitor implements the Monitor interface, printing every message that
// flows through the gateway to a terminal.
type CLIMonitor struct {
	writer io.Writer // The output destination, typically os.Stdout.
	mu     sync.Mutex
}

// NewCLIMonitor creates a new CLI monitor writing to stdout
func NewCLIMonitor() *CLIMonitor {
	return NewCLIMonitorWithWriter(os.Stdout)
}

// NewCLIMonitorWithWriter creates a CLI monitor writing to w.
func NewCLIMonitorWithWriter(w io.Writer) *CLIMonitor {
	return &CLIMonitor{writer: w}
}

// Start starts the CLI monitor
func (m *CLIMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	fmt.Fprintln(m.writer, "💬 CLI Monitor Active - All channel messages will appear here")
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	return nil
}

// Stop stops the CLI monitor
func (m *CLIMonitor) Stop() error {
	return nil
}

// OnMessage receives and displays a monitoring message
func (m *CLIMonitor) OnMessage(msg MonitorMessage) {
	timestamp := msg.Timestamp.Format("2006-01-02 15:04:05")

	var displayMsg string
	switch msg.MessageType {
	case MessageTypeAssistant:
		displayMsg = fmt.Sprintf("[AI → %s/%s] %s", msg.ChannelID, msg.Username, msg.Content)
	default:
		displayMsg = fmt.Sprintf("[%s/%s] %s", msg.ChannelID, msg.Username, msg.Content)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Use gray color for timestamp
	fmt.Fprintf(m.writer, "\033[90m[%s]\033[0m %s\n", timestamp, displayMsg)
}
