package wsview

// FrameType enumerates view frame types.
type FrameType string

const (
	// TypeLoadURL carries a javascript: URL from the host to the page.
	TypeLoadURL FrameType = "load_url"
	// TypeNavigate carries a URL the page navigated to.
	TypeNavigate FrameType = "navigate"
	// TypePageFinished reports that the page finished loading.
	TypePageFinished FrameType = "page_finished"
)

// Frame is the JSON unit exchanged with the page over the WebSocket.
type Frame struct {
	Type FrameType `json:"type"`
	URL  string    `json:"url,omitempty"`
}
