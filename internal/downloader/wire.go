package downloader

// Wire shapes shared by the service and its client.

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type PlaylistRequest struct {
	PlaylistURL string `json:"playlist_url"`
	Mode        string `json:"mode"`
}

type PlaylistResponse struct {
	Status        string           `json:"status"`
	PlaylistTitle string           `json:"playlist_title,omitempty"`
	Videos        []ItemDescriptor `json:"videos,omitempty"`
	Total         int              `json:"total,omitempty"`
	Message       string           `json:"message,omitempty"`
}

type DownloadResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Filename    string `json:"filename,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// ErrorResponse is the body of any tagged failure.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
