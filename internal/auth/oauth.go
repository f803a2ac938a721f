package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// OAuthProvider настройки внешнего провайдера входа
type OAuthProvider struct {
	Name        string
	Config      *oauth2.Config
	UserInfoURL string
}

func GoogleProvider(clientID, clientSecret, redirectBaseURL string) *OAuthProvider {
	return &OAuthProvider{
		Name: ProviderGoogle,
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL(redirectBaseURL, ProviderGoogle),
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
		},
		UserInfoURL: "https://www.googleapis.com/oauth2/v3/userinfo",
	}
}

func FacebookProvider(clientID, clientSecret, redirectBaseURL string) *OAuthProvider {
	return &OAuthProvider{
		Name: ProviderFacebook,
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL(redirectBaseURL, ProviderFacebook),
			Scopes:       []string{"email", "public_profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://www.facebook.com/v18.0/dialog/oauth",
				TokenURL: "https://graph.facebook.com/v18.0/oauth/access_token",
			},
		},
		UserInfoURL: "https://graph.facebook.com/me?fields=id,name,email,picture.type(large)",
	}
}

func callbackURL(base, provider string) string {
	return fmt.Sprintf("%s/api/auth/oauth/%s/callback", strings.TrimRight(base, "/"), provider)
}

// oauthUserInfo общие поля ответа Google и Facebook
type oauthUserInfo struct {
	Email   string          `json:"email"`
	Name    string          `json:"name"`
	Picture json.RawMessage `json:"picture"`
}

// pictureURL у Google строка, у Facebook объект {"data":{"url":...}}
func (u oauthUserInfo) pictureURL() string {
	if len(u.Picture) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(u.Picture, &s); err == nil {
		return s
	}
	var fb struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(u.Picture, &fb); err == nil {
		return fb.Data.URL
	}
	return ""
}

func (p *OAuthProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*oauthUserInfo, error) {
	client := p.Config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка при создании запроса: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении профиля %s: %w", p.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s вернул статус %d", p.Name, resp.StatusCode)
	}

	var info oauthUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("ошибка при разборе профиля %s: %w", p.Name, err)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("%s не передал email пользователя", p.Name)
	}
	return &info, nil
}
