package platform

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/minato/clinicport/internal/model"
)

// AuthSession はプラットフォーム認証APIが発行したトークンセッションを表す。
type AuthSession struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Identity     model.Identity
}

// AuthClient はプラットフォームの認証APIクライアント。
// パスワード認証・サインアップ・サインアウト・トークンリフレッシュを提供する。
type AuthClient struct {
	client *Client
	logger *slog.Logger
}

// NewAuthClient はAuthClientを生成する。
func NewAuthClient(client *Client, logger *slog.Logger) *AuthClient {
	return &AuthClient{client: client, logger: logger}
}

// tokenResponse は認証APIのトークンレスポンスを表す。
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignInWithPassword はメールアドレスとパスワードで認証し、トークンセッションを返す。
// 認証情報が不正な場合はINVALID_CREDENTIALSを返す。
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error) {
	body, status, err := a.client.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", nil,
		map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		a.logger.Info("サインインが拒否されました",
			slog.Int("status", status),
			slog.String("reason", decodeError(body).reason()),
		)
		return nil, model.NewInvalidCredentialsError()
	}
	if status != http.StatusOK {
		return nil, a.unexpectedStatus("signin", status, body)
	}

	return a.parseTokenResponse(body)
}

// SignUp は新規アカウントを登録し、トークンセッションを返す。
// メールアドレスが登録済みの場合はEMAIL_ALREADY_REGISTEREDを返す。
func (a *AuthClient) SignUp(ctx context.Context, email, password string) (*AuthSession, error) {
	body, status, err := a.client.doJSON(ctx, http.MethodPost, "/auth/v1/signup", "", nil,
		map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	if status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusConflict {
		perr := decodeError(body)
		reason := perr.reason()
		if perr.ErrorCode == "user_already_exists" || perr.Code == "user_already_exists" ||
			strings.Contains(strings.ToLower(reason), "already") {
			return nil, model.NewEmailAlreadyRegisteredError()
		}
		return nil, model.NewValidationError(reason)
	}
	if status != http.StatusOK {
		return nil, a.unexpectedStatus("signup", status, body)
	}

	return a.parseTokenResponse(body)
}

// SignOut はプラットフォーム側のトークンを無効化する。
// ベストエフォートの呼び出しであり、失敗してもエラーは呼び出し元で握り潰してよい。
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	_, status, err := a.client.doJSON(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		a.logger.Warn("プラットフォーム側のサインアウトに失敗しました", slog.Int("status", status))
	}
	return nil
}

// Refresh はリフレッシュトークンで新しいトークンセッションを取得する。
// トークンが失効・無効化済みの場合はNOT_AUTHENTICATEDを返す。
func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (*AuthSession, error) {
	body, status, err := a.client.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", nil,
		map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}

	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		a.logger.Info("リフレッシュトークンが無効です",
			slog.String("reason", decodeError(body).reason()),
		)
		return nil, model.NewNotAuthenticatedError()
	}
	if status != http.StatusOK {
		return nil, a.unexpectedStatus("refresh", status, body)
	}

	return a.parseTokenResponse(body)
}

// parseTokenResponse はトークンレスポンスをAuthSessionに変換する。
// 有効期限はexpires_inから算出し、欠落時はアクセストークンのexpクレームで補完する。
func (a *AuthClient) parseTokenResponse(body []byte) (*AuthSession, error) {
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, model.NewNetworkError("認証レスポンスの解析に失敗しました")
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return nil, model.NewNetworkError("認証レスポンスが不完全です")
	}

	session := &AuthSession{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Identity:     model.Identity{ID: tr.User.ID, Email: tr.User.Email},
	}

	if tr.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	// user情報または有効期限が欠けている場合はアクセストークンのクレームから補完する。
	// 署名検証はプラットフォーム側の責務のため、ここではクレームの読み取りのみを行う。
	if session.Identity.ID == "" || session.ExpiresAt.IsZero() {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(tr.AccessToken, claims); err == nil {
			if session.Identity.ID == "" {
				if sub, ok := claims["sub"].(string); ok {
					session.Identity.ID = sub
				}
			}
			if session.Identity.Email == "" {
				if email, ok := claims["email"].(string); ok {
					session.Identity.Email = email
				}
			}
			if session.ExpiresAt.IsZero() {
				if exp, ok := claims["exp"].(float64); ok {
					session.ExpiresAt = time.Unix(int64(exp), 0)
				}
			}
		}
	}

	if session.Identity.ID == "" {
		return nil, model.NewNetworkError("認証レスポンスにユーザー情報がありません")
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = time.Now().Add(time.Hour)
	}

	return session, nil
}

// unexpectedStatus は想定外ステータスをログに記録してシステムエラーを返す。
func (a *AuthClient) unexpectedStatus(operation string, status int, body []byte) error {
	a.logger.Error("認証APIが想定外のステータスを返しました",
		slog.String("operation", operation),
		slog.Int("status", status),
		slog.String("reason", decodeError(body).reason()),
	)
	return model.NewNetworkError("認証サービスでエラーが発生しました")
}
