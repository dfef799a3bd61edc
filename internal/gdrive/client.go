// Package gdrive archives recordings and documents to Google Drive under a
// fixed folder layout.
package gdrive

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	rootFolderName       = "VoxScribe"
	documentsFolderName  = "Documents"
	recordingsFolderName = "Recordings"
	folderMimeType       = "application/vnd.google-apps.folder"
)

// Folders holds the Drive IDs of the archive layout.
type Folders struct {
	Root       string `json:"root"`
	Documents  string `json:"documents"`
	Recordings string `json:"recordings"`
}

// ConnResult reports the outcome of a connectivity check.
type ConnResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// TokenSaver is called whenever the OAuth token is refreshed, so the new
// token can be persisted.
type TokenSaver func(*oauth2.Token)

// savingTokenSource persists refreshed tokens through the saver.
type savingTokenSource struct {
	src  oauth2.TokenSource
	save TokenSaver

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.save != nil && tok.AccessToken != s.last {
		s.last = tok.AccessToken
		s.save(tok)
	}
	return tok, nil
}

// Client wraps the Drive API.
type Client struct {
	svc *drive.Service
}

// NewClient builds a Drive client from an OAuth config and stored token.
// Extra options are applied after the token source, so tests can redirect
// the endpoint.
func NewClient(ctx context.Context, oauthCfg *oauth2.Config, tok *oauth2.Token, save TokenSaver, opts ...option.ClientOption) (*Client, error) {
	ts := &savingTokenSource{
		src:  oauthCfg.TokenSource(ctx, tok),
		save: save,
		last: tok.AccessToken,
	}
	all := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := drive.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// escapeQuery escapes backslashes and single quotes for Drive query strings.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func (c *Client) findFolder(ctx context.Context, name, parentID string) (string, error) {
	parent := "root"
	if parentID != "" {
		parent = parentID
	}
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), folderMimeType, escapeQuery(parent))
	list, err := c.svc.Files.List().Q(q).Fields("files(id, name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("search folder %s: %w", name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (c *Client) createFolder(ctx context.Context, name, parentID string) (string, error) {
	folder := &drive.File{Name: name, MimeType: folderMimeType}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}
	created, err := c.svc.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create folder %s: %w", name, err)
	}
	log.Printf("[gdrive] folder created: %s (%s)", name, created.Id)
	return created.Id, nil
}

func (c *Client) ensureFolder(ctx context.Context, name, parentID string) (string, error) {
	id, err := c.findFolder(ctx, name, parentID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	return c.createFolder(ctx, name, parentID)
}

// EnsureFolderStructure finds or creates VoxScribe/Documents and
// VoxScribe/Recordings and returns their IDs.
func (c *Client) EnsureFolderStructure(ctx context.Context) (*Folders, error) {
	root, err := c.ensureFolder(ctx, rootFolderName, "")
	if err != nil {
		return nil, err
	}
	docs, err := c.ensureFolder(ctx, documentsFolderName, root)
	if err != nil {
		return nil, err
	}
	recs, err := c.ensureFolder(ctx, recordingsFolderName, root)
	if err != nil {
		return nil, err
	}
	return &Folders{Root: root, Documents: docs, Recordings: recs}, nil
}

// FileExists returns the ID of a file with the exact name in the folder, or
// "" when absent.
func (c *Client) FileExists(ctx context.Context, name, folderID string) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), escapeQuery(folderID))
	list, err := c.svc.Files.List().Q(q).Fields("files(id, name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("search file %s: %w", name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

// UploadFile uploads a local file into the folder. A file with the same name
// already present is never re-uploaded; its ID is returned with skipped=true.
func (c *Client) UploadFile(ctx context.Context, localPath, folderID string) (id string, skipped bool, err error) {
	name := filepath.Base(localPath)
	existing, err := c.FileExists(ctx, name, folderID)
	if err != nil {
		return "", false, err
	}
	if existing != "" {
		log.Printf("[gdrive] %s already uploaded, skipping", name)
		return existing, true, nil
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", false, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	meta := &drive.File{Name: name, Parents: []string{folderID}}
	created, err := c.svc.Files.Create(meta).Media(file).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", false, fmt.Errorf("upload %s: %w", name, err)
	}
	log.Printf("[gdrive] uploaded %s (%s)", name, created.Id)
	return created.Id, false, nil
}

// TestConnection checks that the token can reach the Drive API.
func (c *Client) TestConnection(ctx context.Context) ConnResult {
	about, err := c.svc.About.Get().Fields("user").Context(ctx).Do()
	if err != nil {
		return ConnResult{OK: false, Message: fmt.Sprintf("Drive API unreachable: %v", err)}
	}
	msg := "connected"
	if about.User != nil && about.User.EmailAddress != "" {
		msg = fmt.Sprintf("connected as %s", about.User.EmailAddress)
	}
	return ConnResult{OK: true, Message: msg}
}

// DocumentMirror uploads rendered documents into one Drive folder.
type DocumentMirror struct {
	client   *Client
	folderID string
}

func NewDocumentMirror(client *Client, folderID string) *DocumentMirror {
	return &DocumentMirror{client: client, folderID: folderID}
}

func (m *DocumentMirror) MirrorDocument(ctx context.Context, path string) error {
	_, _, err := m.client.UploadFile(ctx, path, m.folderID)
	return err
}
