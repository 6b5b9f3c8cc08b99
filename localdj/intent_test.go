package localdj

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  播放周杰伦  ", "播放周杰伦"},
		{"停止！", "停止"},
		{"刷新：", "刷新"},
		{"随机播放。", "随机播放"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeCompact(t *testing.T) {
	if got := NormalizeCompact("停 止 "); got != "停止" {
		t.Errorf("NormalizeCompact() = %q, want %q", got, "停止")
	}
}

func testSets() KeywordSets {
	return NewKeywordSets(
		[]string{"播放", "放一首"},
		[]string{"停止", "暂停"},
		[]string{"刷新曲库", "刷新"},
		[]string{"随机播放", "随便放"},
		[]string{"几点了", "你好"},
	)
}

func TestClassify(t *testing.T) {
	sets := testSets()

	tests := []struct {
		name        string
		text        string
		wantKind    IntentKind
		wantKeyword string
		wantWhite   bool
	}{
		{"stop exact", "停止", IntentStop, "", false},
		{"refresh exact", "刷新", IntentRefresh, "", false},
		{"random exact", "随机播放", IntentRandom, "", false},
		{"play with keyword", "播放晴天", IntentPlay, "晴天", false},
		{"play with trailing punctuation", "播放晴天！", IntentPlay, "晴天", false},
		{"play with empty keyword is unmatched", "播放", IntentUnmatched, "", false},
		{"unmatched", "今天天气怎么样", IntentUnmatched, "", false},
		{"whitelist substring", "现在几点了呀", IntentUnmatched, "", true},
		{"whitelist exact", "你好", IntentUnmatched, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text, sets)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Keyword != tt.wantKeyword {
				t.Errorf("Keyword = %q, want %q", got.Keyword, tt.wantKeyword)
			}
			if got.Whitelisted != tt.wantWhite {
				t.Errorf("Whitelisted = %v, want %v", got.Whitelisted, tt.wantWhite)
			}
		})
	}
}

func TestClassifyStopTakesPrecedenceOverPlayPrefix(t *testing.T) {
	sets := NewKeywordSets([]string{"停止播放"}, []string{"停止播放"}, nil, nil, nil)
	got := Classify("停止播放", sets)
	if got.Kind != IntentStop {
		t.Errorf("expected exact-match stop to win over play-prefix, got %v", got.Kind)
	}
}
