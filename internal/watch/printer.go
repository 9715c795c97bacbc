package watch

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/trusttai/api/internal/notification"
)

var (
	colorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	colorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	metaStyle   = lipgloss.NewStyle().Foreground(colorGray)
	unreadStyle = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)
	badgeStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

func severityColor(s notification.Severity) lipgloss.AdaptiveColor {
	switch s {
	case notification.SeveritySuccess:
		return colorGreen
	case notification.SeverityWarning:
		return colorYellow
	case notification.SeverityError:
		return colorRed
	default:
		return colorBlue
	}
}

func stateColor(s notification.ConnectionState) lipgloss.AdaptiveColor {
	switch s {
	case notification.StateConnected:
		return colorGreen
	case notification.StateConnecting:
		return colorYellow
	case notification.StateError:
		return colorRed
	default:
		return colorGray
	}
}

// Printer writes notifications and connection changes to a terminal.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	store *notification.Store
}

func NewPrinter(w io.Writer, store *notification.Store) *Printer {
	return &Printer{w: w, store: store}
}

func (p *Printer) Notification(n notification.AdminNotification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, RenderNotification(n, p.store.UnreadCount()))
}

func (p *Printer) State(s notification.ConnectionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, RenderState(s))
}

func RenderNotification(n notification.AdminNotification, unread int) string {
	badge := badgeStyle.Foreground(severityColor(n.Type)).Render(strings.ToUpper(string(n.Type)))

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		badge, " ",
		titleStyle.Render(n.Title), "  ",
		metaStyle.Render(n.CreatedAt),
	)

	lines := []string{header, "  " + n.Message}
	if n.ActionURL != "" {
		lines = append(lines, metaStyle.Render("  -> "+n.ActionURL))
	}
	lines = append(lines, unreadStyle.Render(fmt.Sprintf("  %d unread", unread)))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func RenderState(s notification.ConnectionState) string {
	return metaStyle.Render("connection: ") + lipgloss.NewStyle().Foreground(stateColor(s)).Render(string(s))
}
