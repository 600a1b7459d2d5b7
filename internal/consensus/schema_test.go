package consensus

import (
	"strings"
	"testing"
)

func TestParseVerdictJSON(t *testing.T) {
	v, err := ParseVerdict(`{"consensus_reached": true, "answer": "42", "reasoning": "unanimous"}`)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v["answer"] != "42" {
		t.Errorf("answer = %v", v["answer"])
	}
	if v["consensus_reached"] != true {
		t.Errorf("consensus_reached = %v", v["consensus_reached"])
	}
}

func TestParseVerdictFencedJSON(t *testing.T) {
	raw := "Here is my verdict:\n\n```json\n{\"answer\": \"yes\"}\n```\n\nDone."
	v, err := ParseVerdict(raw)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v["answer"] != "yes" {
		t.Errorf("answer = %v", v["answer"])
	}
}

func TestParseVerdictYAML(t *testing.T) {
	raw := "```yaml\nconsensus_reached: false\nanswer: unclear\nreasoning: models diverge\n```"
	v, err := ParseVerdict(raw)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v["consensus_reached"] != false {
		t.Errorf("consensus_reached = %v", v["consensus_reached"])
	}
	if v["answer"] != "unclear" {
		t.Errorf("answer = %v", v["answer"])
	}
}

func TestParseVerdictBareFence(t *testing.T) {
	raw := "```\n{\"answer\": \"fine\"}\n```"
	v, err := ParseVerdict(raw)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v["answer"] != "fine" {
		t.Errorf("answer = %v", v["answer"])
	}
}

func TestParseVerdictUnclosedFence(t *testing.T) {
	raw := "```json\n{\"answer\": \"trailing\"}"
	v, err := ParseVerdict(raw)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v["answer"] != "trailing" {
		t.Errorf("answer = %v", v["answer"])
	}
}

func TestParseVerdictRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "this is just prose {{{"} {
		if _, err := ParseVerdict(raw); err == nil {
			t.Errorf("ParseVerdict(%q) should fail", raw)
		}
	}
}

func TestFallbackPolicy(t *testing.T) {
	schema := Schema{Fields: []Field{
		{Name: "consensus_reached", Kind: KindBool},
		{Name: "verified", Kind: KindBool},
		{Name: "answer", Kind: KindString},
		{Name: "confidence", Kind: KindNumber},
		{Name: "extras", Kind: KindAny},
	}}

	v := schema.Fallback("budget ran out")
	if v["consensus_reached"] != false || v["verified"] != false {
		t.Errorf("booleans = %v / %v, want false", v["consensus_reached"], v["verified"])
	}
	answer, _ := v["answer"].(string)
	if !strings.Contains(answer, "budget ran out") {
		t.Errorf("answer = %q, want failure explanation", answer)
	}
	if v["confidence"] != "unknown" || v["extras"] != "unknown" {
		t.Errorf("non-string kinds = %v / %v, want unknown sentinel", v["confidence"], v["extras"])
	}
}

func TestConformDropsAndDefaults(t *testing.T) {
	schema := Schema{Fields: []Field{
		{Name: "consensus_reached", Kind: KindBool},
		{Name: "answer", Kind: KindString},
		{Name: "confidence", Kind: KindNumber},
		{Name: "notes", Kind: KindAny},
	}}

	v := schema.Conform(Verdict{
		"answer":              "yes",
		"totally_unrequested": 42,
	})

	if len(v) != 4 {
		t.Fatalf("conformed verdict has %d fields, want 4: %v", len(v), v)
	}
	if _, ok := v["totally_unrequested"]; ok {
		t.Error("extra field survived Conform")
	}
	if v["answer"] != "yes" {
		t.Errorf("answer = %v", v["answer"])
	}
	if v["consensus_reached"] != false {
		t.Errorf("missing bool = %v, want false", v["consensus_reached"])
	}
	if v["confidence"] != 0.0 {
		t.Errorf("missing number = %v, want 0", v["confidence"])
	}
	if v["notes"] != nil {
		t.Errorf("missing any = %v, want nil", v["notes"])
	}
}

func TestConformKeepsCompleteVerdict(t *testing.T) {
	in := Verdict{"consensus_reached": true, "answer": "4", "reasoning": "unanimous"}
	v := DefaultSchema().Conform(in)
	if v["consensus_reached"] != true || v["answer"] != "4" || v["reasoning"] != "unanimous" {
		t.Errorf("Conform changed a complete verdict: %v", v)
	}
}

func TestParseSchemaSpec(t *testing.T) {
	s, err := ParseSchemaSpec("winner:string, margin:number ,decisive:bool,notes")
	if err != nil {
		t.Fatalf("ParseSchemaSpec: %v", err)
	}
	want := []Field{
		{Name: "winner", Kind: KindString},
		{Name: "margin", Kind: KindNumber},
		{Name: "decisive", Kind: KindBool},
		{Name: "notes", Kind: KindAny},
	}
	if len(s.Fields) != len(want) {
		t.Fatalf("fields = %+v", s.Fields)
	}
	for i, f := range want {
		if s.Fields[i] != f {
			t.Errorf("field %d = %+v, want %+v", i, s.Fields[i], f)
		}
	}
}

func TestParseSchemaSpecRejections(t *testing.T) {
	for _, spec := range []string{"", "  ,, ", "x:blob", "a:bool,a:string", ":bool"} {
		if _, err := ParseSchemaSpec(spec); err == nil {
			t.Errorf("ParseSchemaSpec(%q) should fail", spec)
		}
	}
}

func TestDefaultSchemaDescribe(t *testing.T) {
	desc := DefaultSchema().Describe()
	for _, field := range []string{"consensus_reached", "answer", "reasoning"} {
		if !strings.Contains(desc, field) {
			t.Errorf("Describe() missing %q:\n%s", field, desc)
		}
	}
}
