package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "KwizKit" {
		t.Errorf("T(AppTitle) = %q, want 'KwizKit'", got)
	}
	if got := T(ctx, "ErrSaveFailed"); got != "Failed to save changes." {
		t.Errorf("T(ErrSaveFailed) = %q, want 'Failed to save changes.'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "ErrSaveFailed"); got != "Не удалось сохранить изменения." {
		t.Errorf("T(ErrSaveFailed) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	tests := []struct {
		lang  string
		count int
		want  string
	}{
		{"en", 1, "1 pending change"},
		{"en", 5, "5 pending changes"},
		{"ru", 1, "1 несохранённое изменение"},
		{"ru", 3, "3 несохранённых изменения"},
		{"ru", 5, "5 несохранённых изменений"},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			ctx := initLang(t, tt.lang)
			if got := Tp(ctx, "PendingChanges", tt.count); got != tt.want {
				t.Errorf("Tp(PendingChanges, %d) = %q, want %q", tt.count, got, tt.want)
			}
		})
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "TableVersion", map[string]any{"Version": 42})
	if got != "Version 42" {
		t.Errorf("Td(TableVersion, Version=42) = %q, want 'Version 42'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestNegotiate(t *testing.T) {
	initLang(t, "en")

	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"ru-RU,ru;q=0.9,en;q=0.8", "ru"},
		{"de-DE", "en"},
		{"en-GB", "en"},
		{"garbage;;;", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := Negotiate(tt.header); got != tt.want {
				t.Errorf("Negotiate(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "ErrNotFound")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ru")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "Запрошенный объект не найден." {
		t.Errorf("expected Russian message, got %q", got)
	}
}
