package domain

import "time"

// Session は保存されたキャンバスです。complete のエンティティだけが保存対象です。
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Scale     float64
	Origin    Point
	Images    []ImageEntity
}

// SessionSummary は一覧表示用の軽量な情報です。
type SessionSummary struct {
	ID         string
	Title      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ImageCount int
}
