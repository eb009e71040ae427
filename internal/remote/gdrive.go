package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"jassist-go/internal/jassist"
)

// DefaultDriveBaseURL is the Drive REST v3 root.
const DefaultDriveBaseURL = "https://www.googleapis.com/drive/v3"

// DriveScope grants read and delete access to the user's files.
const DriveScope = "https://www.googleapis.com/auth/drive"

const (
	folderPageSize = 5
	listPageSize   = 100
	fileFields     = "id,name,mimeType,modifiedTime,size,parents"
)

// DriveRemote talks to the Google Drive REST v3 API.
// The http.Client is expected to attach credentials, as the one from NewDriveHTTPClient does.
type DriveRemote struct {
	baseURL string
	http    *http.Client
	logger  jassist.Logger
}

// NewDriveRemote creates a Drive client. An empty baseURL uses DefaultDriveBaseURL.
func NewDriveRemote(baseURL string, client *http.Client, logger jassist.Logger) *DriveRemote {
	if baseURL == "" {
		baseURL = DefaultDriveBaseURL
	}
	if logger == nil {
		logger = jassist.NewNopLogger()
	}
	return &DriveRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		logger:  logger,
	}
}

// driveEndpoint is where tokens are refreshed.
var driveEndpoint = google.Endpoint

// NewDriveHTTPClient returns an OAuth2 client for userID. The token is read from the secrets store,
// and refreshed tokens are written back to it. The client outlives ctx: only its values, such as
// an oauth2.HTTPClient, are kept for token refreshes.
func NewDriveHTTPClient(ctx context.Context, secrets jassist.SecretStore, userID string) (*http.Client, error) {
	ctx = context.WithoutCancel(ctx)

	clientID, err := secrets.Get(jassist.SecretDriveClientID)
	if err != nil {
		return nil, fmt.Errorf("reading drive client id: %w", err)
	}
	clientSecret, err := secrets.Get(jassist.SecretDriveClientSecret)
	if err != nil {
		return nil, fmt.Errorf("reading drive client secret: %w", err)
	}
	raw, err := secrets.Get(jassist.DriveTokenSecret(userID))
	if err != nil {
		return nil, fmt.Errorf("reading drive token: %w", err)
	}
	if clientID == "" || raw == "" {
		return nil, jassist.Configf("google credentials not available for user %s", userID)
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, jassist.Configf("drive token for user %s is not valid JSON: %v", userID, err)
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     driveEndpoint,
		Scopes:       []string{DriveScope},
	}
	src := &persistingTokenSource{
		base:    conf.TokenSource(ctx, &tok),
		secrets: secrets,
		name:    jassist.DriveTokenSecret(userID),
		last:    tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(&tok, src)), nil
}

// persistingTokenSource stores every new access token it sees.
type persistingTokenSource struct {
	base    oauth2.TokenSource
	secrets jassist.SecretStore
	name    string

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		data, err := json.Marshal(tok)
		if err != nil {
			return nil, fmt.Errorf("encoding refreshed token: %w", err)
		}
		if err := s.secrets.Set(s.name, string(data)); err != nil {
			return nil, fmt.Errorf("saving refreshed token: %w", err)
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

type driveFile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Size         int64     `json:"size,string"`
	Parents      []string  `json:"parents"`
}

func (f *driveFile) toRemote() *jassist.RemoteFile {
	return &jassist.RemoteFile{
		ID:           f.ID,
		Name:         f.Name,
		MimeType:     f.MimeType,
		ModifiedTime: f.ModifiedTime,
		Size:         f.Size,
		Parents:      f.Parents,
	}
}

type fileList struct {
	NextPageToken string       `json:"nextPageToken"`
	Files         []*driveFile `json:"files"`
}

type driveErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// quote escapes a value for a Drive query string literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// do issues a GET or DELETE and returns the response for 2xx. A 404 returns (nil, nil).
func (d *DriveRemote) do(ctx context.Context, method, op, endpoint string, query url.Values) (*http.Response, error) {
	u := d.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building drive request: %w", err)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		d.logger.Error("drive request failed", "op", op, "error", err)
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			status := 0
			if re.Response != nil {
				status = re.Response.StatusCode
			}
			return nil, jassist.NewTransportError(jassist.KindAuth, status, "", err)
		}
		return nil, jassist.NewTransportError(jassist.KindConnection, 0, "", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	detail := strings.TrimSpace(string(body))
	var eb driveErrorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error.Message != "" {
		detail = eb.Error.Message
	}
	d.logger.Error("drive request failed", "op", op, "status", resp.StatusCode, "detail", detail)
	return nil, jassist.NewTransportError(jassist.KindForStatus(resp.StatusCode), resp.StatusCode, detail, nil)
}

func (d *DriveRemote) decode(op string, resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		d.logger.Error("decoding drive response", "op", op, "error", err)
		return jassist.NewTransportError(jassist.KindAPIError, resp.StatusCode, "malformed response", err)
	}
	return nil
}

// FindFolder returns the first non-trashed folder called name.
func (d *DriveRemote) FindFolder(ctx context.Context, name string) (string, error) {
	q := url.Values{
		"q":        {fmt.Sprintf("mimeType=%s and name=%s and trashed=false", quote(jassist.FolderMimeType), quote(name))},
		"spaces":   {"drive"},
		"fields":   {"files(id,name)"},
		"pageSize": {fmt.Sprint(folderPageSize)},
	}
	resp, err := d.do(ctx, http.MethodGet, "find_folder", "/files", q)
	if err != nil || resp == nil {
		return "", err
	}
	var list fileList
	if err := d.decode("find_folder", resp, &list); err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		d.logger.Warn("folder not found", "folder", name)
		return "", nil
	}
	return list.Files[0].ID, nil
}

// ListFiles follows nextPageToken until every page is read.
func (d *DriveRemote) ListFiles(ctx context.Context, folderID string) ([]*jassist.RemoteFile, error) {
	q := url.Values{
		"q":        {fmt.Sprintf("%s in parents and trashed=false and mimeType!=%s", quote(folderID), quote(jassist.FolderMimeType))},
		"spaces":   {"drive"},
		"fields":   {"nextPageToken,files(" + fileFields + ")"},
		"pageSize": {fmt.Sprint(listPageSize)},
	}

	var files []*jassist.RemoteFile
	for {
		resp, err := d.do(ctx, http.MethodGet, "list_files", "/files", q)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return files, nil
		}
		var list fileList
		if err := d.decode("list_files", resp, &list); err != nil {
			return nil, err
		}
		for _, f := range list.Files {
			files = append(files, f.toRemote())
		}
		if list.NextPageToken == "" {
			break
		}
		q.Set("pageToken", list.NextPageToken)
	}
	d.logger.Debug("listed drive folder", "folder", folderID, "files", len(files))
	return files, nil
}

// GetMetadata returns nil when the file does not exist.
func (d *DriveRemote) GetMetadata(ctx context.Context, fileID string) (*jassist.RemoteFile, error) {
	resp, err := d.do(ctx, http.MethodGet, "get_metadata", "/files/"+url.PathEscape(fileID), url.Values{"fields": {fileFields}})
	if err != nil || resp == nil {
		return nil, err
	}
	var f driveFile
	if err := d.decode("get_metadata", resp, &f); err != nil {
		return nil, err
	}
	return f.toRemote(), nil
}

// Download exports native documents and fetches everything else with alt=media.
func (d *DriveRemote) Download(ctx context.Context, fileID string) ([]byte, error) {
	meta, err := d.GetMetadata(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, jassist.NewTransportError(jassist.KindInvalidRequest, http.StatusNotFound, "file not found: "+fileID, nil)
	}

	endpoint := "/files/" + url.PathEscape(fileID)
	q := url.Values{"alt": {"media"}}
	if jassist.IsNativeDocument(meta.MimeType) {
		target, ok := jassist.ExportMimeType(meta.MimeType)
		if !ok {
			d.logger.Error("no export format", "file", meta.Name, "mime_type", meta.MimeType)
			return nil, jassist.NewTransportError(jassist.KindInvalidRequest, 0, "cannot export "+meta.MimeType, nil)
		}
		endpoint += "/export"
		q = url.Values{"mimeType": {target}}
	}

	resp, err := d.do(ctx, http.MethodGet, "download", endpoint, q)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, jassist.NewTransportError(jassist.KindInvalidRequest, http.StatusNotFound, "file not found: "+fileID, nil)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		d.logger.Error("reading drive download", "file", fileID, "error", err)
		return nil, jassist.NewTransportError(jassist.KindConnection, 0, "", err)
	}
	return data, nil
}

// Delete permanently removes the file. It returns false when it did not exist.
func (d *DriveRemote) Delete(ctx context.Context, fileID string) (bool, error) {
	resp, err := d.do(ctx, http.MethodDelete, "delete", "/files/"+url.PathEscape(fileID), nil)
	if err != nil || resp == nil {
		return false, err
	}
	resp.Body.Close()
	return true, nil
}

// Compile-time check that DriveRemote implements jassist.RemoteFileClient interface
var _ jassist.RemoteFileClient = (*DriveRemote)(nil)
