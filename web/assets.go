// Package web 内嵌聊天挂件脚本
package web

import (
	"bytes"
	_ "embed"
	"net/http"
	"time"
)

//go:embed embed.js
var embedScript []byte

var loadedAt = time.Now()

// EmbedScript 返回挂件脚本原文
func EmbedScript() []byte {
	return embedScript
}

// ServeEmbed 提供 /embed.js
func ServeEmbed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	http.ServeContent(w, r, "embed.js", loadedAt, bytes.NewReader(embedScript))
}
