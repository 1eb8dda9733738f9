package pipeline

import (
	"testing"

	"github.com/user/offer-image-service/internal/entity"
)

func TestEnhance(t *testing.T) {
	e := newEnhancer(mustCompile(t, testRules()))

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"underscore thumbnail", "https://cbu01.alicdn.com/img/a.jpg_60x60.jpg", "https://cbu01.alicdn.com/img/a.jpg_400x400.jpg"},
		{"underscore with quality", "https://cbu01.alicdn.com/img/a_100x100q90.jpg", "https://cbu01.alicdn.com/img/a_400x400.jpg"},
		{"dotted size", "https://cbu01.alicdn.com/img/a.220x220.jpg", "https://cbu01.alicdn.com/img/a.400x400.jpg"},
		{"summ token", "https://cbu01.alicdn.com/img/a.summ.jpg", "https://cbu01.alicdn.com/img/a.400x400.jpg"},
		{"search token", "https://cbu01.alicdn.com/img/a.search.png", "https://cbu01.alicdn.com/img/a.400x400.png"},
		{"webp suffix stripped", "https://cbu01.alicdn.com/img/a.jpg_.webp", "https://cbu01.alicdn.com/img/a_400x400.jpg"},
		{"large image untouched", "https://cbu01.alicdn.com/img/a_800x800.jpg", "https://cbu01.alicdn.com/img/a_800x800.jpg"},
		{"one side large untouched", "https://cbu01.alicdn.com/img/a_200x600.jpg", "https://cbu01.alicdn.com/img/a_200x600.jpg"},
		{"plain asset gets size", "https://cbu01.alicdn.com/img/a.png", "https://cbu01.alicdn.com/img/a_400x400.png"},
		{"query preserved", "https://cbu01.alicdn.com/img/a_60x60.jpg?w=60", "https://cbu01.alicdn.com/img/a_400x400.jpg?w=60"},
		{"foreign host untouched", "https://www.example.org/a.jpg", "https://www.example.org/a.jpg"},
		{"digits around x inside image id", "https://cbu01.alicdn.com/img/ibank/O1CN01ab90x8000cd.jpg", "https://cbu01.alicdn.com/img/ibank/O1CN01ab90x8000cd_400x400.jpg"},
		{"digits around x in directory", "https://cbu01.alicdn.com/img/2020/12x34/photo.png", "https://cbu01.alicdn.com/img/2020/12x34/photo_400x400.png"},
		{"image id with bangs", "https://cbu01.alicdn.com/img/ibank/O1CN01ab12x34cd_!!2211-0-cib.jpg", "https://cbu01.alicdn.com/img/ibank/O1CN01ab12x34cd_!!2211-0-cib_400x400.jpg"},
		{"thumbnail with bangs", "https://cbu01.alicdn.com/img/ibank/O1CN01ab_!!2211-0-cib.jpg_60x60.jpg", "https://cbu01.alicdn.com/img/ibank/O1CN01ab_!!2211-0-cib.jpg_400x400.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Enhance(tt.in)
			if got != tt.want {
				t.Errorf("Enhance(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := e.Enhance(got); again != got {
				t.Errorf("Enhance is not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestSizeHint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://cbu01.alicdn.com/img/a_400x400.jpg", "400x400"},
		{"https://cbu01.alicdn.com/img/a.1200x900.jpg", "1200x900"},
		{"https://cbu01.alicdn.com/img/a_100x100q90.jpg", "100x100"},
		{"https://cbu01.alicdn.com/img/a.jpg", entity.SizeUnknown},
		{"https://cbu01.alicdn.com/img/ibank/O1CN01ab90x8000cd.jpg", entity.SizeUnknown},
		{"https://cbu01.alicdn.com/img/2020/12x34/photo.jpg", entity.SizeUnknown},
		{"https://cbu01.alicdn.com/img/a.jpg?w=60x60", entity.SizeUnknown},
	}
	for _, tt := range tests {
		if got := SizeHint(tt.in); got != tt.want {
			t.Errorf("SizeHint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	e := newEnhancer(mustCompile(t, testRules()))

	tests := []struct {
		name     string
		url      string
		position int
		want     entity.ImageType
	}{
		{"first position", "https://img.alicdn.com/a.jpg", 0, entity.ImageTypeMain},
		{"last main position", "https://img.alicdn.com/a.jpg", 2, entity.ImageTypeMain},
		{"first detail position", "https://img.alicdn.com/a.jpg", 3, entity.ImageTypeDetail},
		{"last detail position", "https://img.alicdn.com/a.jpg", 7, entity.ImageTypeDetail},
		{"other position", "https://img.alicdn.com/a.jpg", 8, entity.ImageTypeOther},
		{"detail keyword beats position", "https://img.alicdn.com/detail/a.jpg", 0, entity.ImageTypeDetail},
		{"main keyword beats position", "https://img.alicdn.com/main_a.jpg", 9, entity.ImageTypeMain},
		{"thumbnail keyword", "https://img.alicdn.com/thumb/a.jpg", 1, entity.ImageTypeThumbnail},
		{"keyword in query", "https://img.alicdn.com/a.jpg?format=large", 9, entity.ImageTypeDetail},
		{"host is ignored", "https://main.alicdn.com/a.jpg", 9, entity.ImageTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Classify(tt.url, tt.position); got != tt.want {
				t.Errorf("Classify(%q, %d) = %s, want %s", tt.url, tt.position, got, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	e := newEnhancer(mustCompile(t, testRules()))

	t.Run("zero max", func(t *testing.T) {
		got, _ := e.Build([]string{"https://img.alicdn.com/a.jpg"}, 0)
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", got)
		}
	})

	t.Run("upgrades collapse to one result", func(t *testing.T) {
		got, collapsed := e.Build([]string{
			"https://img.alicdn.com/a_60x60.jpg",
			"https://img.alicdn.com/a_100x100.jpg",
			"https://img.alicdn.com/b.jpg",
		}, 12)
		if len(got) != 2 || collapsed != 1 {
			t.Fatalf("expected 2 results and 1 collapsed, got %+v (collapsed %d)", got, collapsed)
		}
		if got[0].OriginalURL != "https://img.alicdn.com/a_60x60.jpg" || got[1].OriginalURL != "https://img.alicdn.com/b.jpg" {
			t.Errorf("unexpected originals: %s, %s", got[0].OriginalURL, got[1].OriginalURL)
		}
		if got[0].Index != 1 || got[1].Index != 2 {
			t.Errorf("indexes = %d, %d", got[0].Index, got[1].Index)
		}
	})

	t.Run("fills up to max after collapse", func(t *testing.T) {
		got, _ := e.Build([]string{
			"https://img.alicdn.com/a_60x60.jpg",
			"https://img.alicdn.com/a_100x100.jpg",
			"https://img.alicdn.com/b.jpg",
			"https://img.alicdn.com/c.jpg",
		}, 2)
		if len(got) != 2 || got[1].OriginalURL != "https://img.alicdn.com/b.jpg" {
			t.Errorf("got %+v", got)
		}
	})
}
