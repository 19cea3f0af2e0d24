// Package geonames acquires country dump archives: download, extract,
// and hand back the local path of the tab-delimited text file. It is the
// acquisition collaborator in front of the ingestion pipeline and owns
// all retry-free network behavior.
package geonames

import (
	"archive/zip"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public GeoNames dump endpoint.
const DefaultBaseURL = "https://download.geonames.org/export/dump"

var countryRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Client downloads GeoNames dump archives over HTTP or an ftp:// mirror.
// Requests are rate limited so bulk fetches stay polite.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	ftpTimeout time.Duration
}

// NewClient builds a Client for the given base URL, spacing requests by
// the given interval.
func NewClient(baseURL string, every time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if every <= 0 {
		every = 500 * time.Millisecond
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		limiter:    rate.NewLimiter(rate.Every(every), 1),
		ftpTimeout: 30 * time.Second,
	}
}

// Fetch downloads and extracts the dump archive for one country code and
// returns the path to the extracted text file. An already-extracted file
// is reused without touching the network.
func (c *Client) Fetch(ctx context.Context, country, destDir string) (string, error) {
	cc := strings.ToUpper(strings.TrimSpace(country))
	if !countryRe.MatchString(cc) {
		return "", eris.Errorf("geonames: invalid country code %q", country)
	}

	log := zap.L().With(
		zap.String("component", "geonames.download"),
		zap.String("country", cc),
	)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "geonames: create dest dir")
	}

	txtPath := filepath.Join(destDir, cc+".txt")
	if info, err := os.Stat(txtPath); err == nil && info.Size() > 0 {
		log.Debug("dump already extracted, skipping download", zap.String("path", txtPath))
		return txtPath, nil
	}

	zipPath := filepath.Join(destDir, cc+".zip")
	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("archive already present, skipping download", zap.String("path", zipPath))
	} else {
		dumpURL := c.baseURL + "/" + cc + ".zip"
		log.Info("downloading dump archive", zap.String("url", dumpURL))

		if err := c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "geonames: rate limit wait")
		}
		if err := c.downloadFile(ctx, dumpURL, zipPath); err != nil {
			return "", eris.Wrapf(err, "geonames: download %s", cc)
		}
	}

	if err := extractZIP(zipPath, destDir); err != nil {
		return "", eris.Wrapf(err, "geonames: extract %s", cc)
	}

	if info, err := os.Stat(txtPath); err != nil || info.Size() == 0 {
		return "", eris.Errorf("geonames: archive for %s did not contain %s.txt", cc, cc)
	}

	return txtPath, nil
}

// downloadFile downloads a URL to a local file, dispatching on scheme so
// that ftp:// mirrors work alongside the default HTTP endpoint.
func (c *Client) downloadFile(ctx context.Context, rawURL, dest string) error {
	if strings.HasPrefix(rawURL, "ftp://") {
		return c.downloadFTP(ctx, rawURL, dest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("download returned status %d", resp.StatusCode)
	}

	return writeFile(dest, resp.Body)
}

// downloadFTP retrieves a file from an anonymous FTP mirror.
func (c *Client) downloadFTP(ctx context.Context, rawURL, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrap(err, "parse ftp url")
	}

	host := u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(c.ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "ftp dial")
	}
	defer func() { _ = conn.Quit() }()

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return eris.Wrap(err, "ftp login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return eris.Wrap(err, "ftp retrieve")
	}
	defer func() { _ = resp.Close() }()

	return writeFile(dest, resp)
}

// writeFile copies r to a local file at dest.
func writeFile(dest string, r io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, r); err != nil {
		return eris.Wrap(err, "write file")
	}
	return nil
}

// extractZIP extracts a ZIP archive flat into the destination directory.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		// Entry names are flattened to guard against path traversal.
		destPath := filepath.Join(destDir, filepath.Base(f.Name))

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", f.Name)
		}

		if err := writeFile(destPath, rc); err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "extract %s", f.Name)
		}
		_ = rc.Close()
	}

	return nil
}
