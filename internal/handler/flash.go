package handler

import (
	"net/http"
	"net/url"
)

const flashCookieName = "flash"

// setFlash は次の画面表示で1回だけ表示するメッセージをCookieに保存する。
func setFlash(w http.ResponseWriter, secure bool, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    url.QueryEscape(message),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash はflashメッセージを読み出し、Cookieを削除する。
func popFlash(w http.ResponseWriter, r *http.Request, secure bool) string {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	msg, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return ""
	}
	return msg
}
