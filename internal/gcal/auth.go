package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// credentialsFile mirrors the JSON downloaded from Google Cloud Console,
// which carries either an "installed" or a "web" section.
type credentialsFile struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"installed"`
	Web struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// NewOAuthConfig builds the OAuth config for the Google Calendar scope from
// a credentials JSON file.
func NewOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds credentialsFile
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	clientID, clientSecret := creds.Installed.ClientID, creds.Installed.ClientSecret
	if clientID == "" {
		clientID, clientSecret = creds.Web.ClientID, creds.Web.ClientSecret
	}
	if clientID == "" {
		return nil, fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "http://127.0.0.1:8080", // updated dynamically by the auth flow
		Scopes: []string{
			"https://www.googleapis.com/auth/calendar",
			"https://www.googleapis.com/auth/calendar.events",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
	}, nil
}

// autoSaveTokenSource wraps an oauth2.TokenSource and persists refreshed
// tokens so the interactive flow only ever runs once.
type autoSaveTokenSource struct {
	source    oauth2.TokenSource
	store     *FileTokenStore
	lastToken *oauth2.Token
}

func (a *autoSaveTokenSource) Token() (*oauth2.Token, error) {
	token, err := a.source.Token()
	if err != nil {
		return nil, err
	}

	if a.lastToken == nil || a.lastToken.AccessToken != token.AccessToken {
		if err := a.store.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		a.lastToken = token
	}

	return token, nil
}

// startLocalServer starts a local HTTP server to receive the OAuth
// callback. Port 8080 is tried first, then a random port.
func startLocalServer() (string, <-chan string, <-chan error, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:8080")
	if err != nil {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return "", nil, nil, fmt.Errorf("failed to start local server: %w", err)
		}
	}

	port := listener.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	server := &http.Server{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  10 * time.Second,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code != "" {
			fmt.Fprintf(w, "<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>")
			codeChan <- code
		} else if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>Error: %s</p></body></html>", errMsg)
			errorChan <- fmt.Errorf("authorization error: %s", errMsg)
		} else {
			fmt.Fprintf(w, "<html><body><h1>No authorization code received</h1></body></html>")
			errorChan <- fmt.Errorf("no authorization code received")
		}
		go func() {
			time.Sleep(1 * time.Second)
			server.Shutdown(context.Background())
		}()
	})
	server.Handler = mux

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errorChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	return redirectURL, codeChan, errorChan, nil
}

// AuthenticatedClient returns an HTTP client authorized for the Google
// Calendar API. On first run it guides the user through the interactive
// OAuth flow; afterwards it reuses and refreshes the stored token.
func AuthenticatedClient(ctx context.Context, oauthConfig *oauth2.Config, store *FileTokenStore) (*http.Client, error) {
	token, err := store.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if token == nil {
		redirectURL, codeChan, errorChan, err := startLocalServer()
		if err != nil {
			return nil, fmt.Errorf("failed to start local server: %w", err)
		}
		oauthConfig.RedirectURL = redirectURL

		authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		fmt.Printf("Starting local server on %s\n", redirectURL)
		fmt.Println("\nPlease visit the following URL to authorize the application:")
		fmt.Println(authURL)
		fmt.Println("\nWaiting for authorization...")

		var code string
		select {
		case code = <-codeChan:
		case err := <-errorChan:
			return nil, fmt.Errorf("failed to receive authorization code: %w", err)
		case <-time.After(5 * time.Minute):
			return nil, fmt.Errorf("authorization timeout: no response received within 5 minutes")
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		token, err = oauthConfig.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
		}

		if err := store.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save token: %w", err)
		}

		fmt.Println("Authorization successful!")
	}

	autoSaveSource := &autoSaveTokenSource{
		source:    oauth2.ReuseTokenSource(token, oauthConfig.TokenSource(ctx, token)),
		store:     store,
		lastToken: token,
	}

	return oauth2.NewClient(ctx, autoSaveSource), nil
}
