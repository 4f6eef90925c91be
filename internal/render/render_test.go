package render

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{
			name:     "headings and paragraphs",
			input:    "## 感情线\n深邃而绵长。",
			contains: []string{"<h2>感情线</h2>", "<p>深邃而绵长。</p>"},
		},
		{
			name:     "lists and emphasis",
			input:    "- **生命线** 清晰\n- 智慧线",
			contains: []string{"<ul>", "<li><strong>生命线</strong> 清晰</li>", "<li>智慧线</li>"},
		},
		{
			name:     "raw html is dropped",
			input:    "<script>alert(1)</script>\n\n手掌温暖",
			contains: []string{"手掌温暖"},
			excludes: []string{"<script>"},
		},
		{
			name:     "gfm table",
			input:    "| 线 | 含义 |\n|---|---|\n| 生命线 | 活力 |",
			contains: []string{"<table>", "<td>生命线</td>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HTML(tt.input)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(string(got), want) {
					t.Errorf("Expected %q in output, got %s", want, got)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(string(got), unwanted) {
					t.Errorf("Expected %q to be removed, got %s", unwanted, got)
				}
			}
		})
	}
}

func plainStyle() Style {
	plain := lipgloss.NewStyle()
	return Style{Heading: plain, Bullet: plain, Body: plain, Rule: plain, Error: plain}
}

func TestTerminal(t *testing.T) {
	got := plainStyle().Terminal("## 感情线\n\n- **深邃**而绵长\n1. 第一条\n普通 _文字_")
	want := strings.Join([]string{
		"感情线",
		"",
		"• 深邃而绵长",
		"• 第一条",
		"普通 文字",
	}, "\n")

	if got != want {
		t.Errorf("Expected:\n%s\ngot:\n%s", want, got)
	}
}

func TestTerminal_DefaultStyleKeepsText(t *testing.T) {
	got := Terminal("# 掌纹\n命运线笔直")
	for _, want := range []string{"掌纹", "命运线笔直"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in output, got %q", want, got)
		}
	}
	if strings.Contains(got, "#") {
		t.Errorf("Expected heading markers to be removed, got %q", got)
	}
}

func TestBanner(t *testing.T) {
	got := DefaultStyle.Banner("神秘连接中断。请重试。")
	if !strings.Contains(got, "神秘连接中断") {
		t.Errorf("Expected message inside banner, got %q", got)
	}
}
