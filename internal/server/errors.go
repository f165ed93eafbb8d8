package server

import (
	"errors"
	"net/http"

	"github.com/Aero123421/RSS7/internal/database"
	"github.com/Aero123421/RSS7/internal/delivery"
	"github.com/Aero123421/RSS7/internal/feeds"
	"github.com/Aero123421/RSS7/internal/qa"
	"github.com/Aero123421/RSS7/internal/rss"
)

// internalErrorMessage is shown for errors without a mapping. The detail is
// only logged.
const internalErrorMessage = "内部エラーが発生しました。しばらくしてから再度お試しください。"

// errorMessages are the user-facing texts of known errors.
var errorMessages = []struct {
	err    error
	status int
	msg    string
}{
	{database.ErrFeedNotFound, http.StatusNotFound, "指定されたフィードが見つかりません"},
	{database.ErrNotFound, http.StatusNotFound, "見つかりません"},
	{qa.ErrUnknownMessage, http.StatusNotFound, "元の記事が見つかりませんでした。"},
	{feeds.ErrNothingNew, http.StatusNotFound, "新しい記事はありません。"},
	{database.ErrFeedExists, http.StatusConflict, "このフィードは既に登録されています"},
	{rss.ErrInvalidURL, http.StatusBadRequest, "無効なURLです"},
	{feeds.ErrUpstream, http.StatusUnprocessableEntity, "フィードの解析に失敗しました。有効なRSS/Atomフィードであることを確認してください。"},
	{delivery.ErrAlreadyDelivered, http.StatusConflict, "この記事は既に配信済みです。"},
	{delivery.ErrNoDestination, http.StatusUnprocessableEntity, "このフィードには配信先チャンネルが設定されていません。"},
}

func statusFor(err error) int {
	for _, e := range errorMessages {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func errorMessage(err error) string {
	for _, e := range errorMessages {
		if errors.Is(err, e.err) {
			return e.msg
		}
	}
	return internalErrorMessage
}
