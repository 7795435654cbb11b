package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextKeepsClinicalNotation(t *testing.T) {
	cases := []string{
		"T2<N0 tumour, ER<1%",
		"Stage T2<N0 disease; recommend lobectomy, then adjuvant chemo",
		"PSA > 4 & <10 ng/mL",
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"<b>bold</b> stays as typed",
		"  leading and trailing space\n",
	}
	for _, in := range cases {
		assert.Equal(t, in, Text(in))
	}
}

func TestTextDropsNUL(t *testing.T) {
	assert.Equal(t, "ab", Text("a\x00b"))
	assert.Equal(t, "", Text(""))
}

func TestPtr(t *testing.T) {
	assert.Nil(t, Ptr(nil))
	in := "ER<1%"
	assert.Equal(t, "ER<1%", *Ptr(&in))
}

func TestLine(t *testing.T) {
	assert.Equal(t, "Lung-Mar 1-1", Line("  Lung-Mar 1-1 "))
	assert.Equal(t, "Thoracic  board", Line("Thoracic\n\tboard"))
	assert.Equal(t, "ER<1% cohort", Line("ER<1% cohort"))
	assert.Nil(t, LinePtr(nil))
}

func TestAll(t *testing.T) {
	assert.Equal(t, []string{"What stage?", " Is N<2 likely? "}, All([]string{"What stage?", "   ", " Is N<2 likely? ", "\x00"}))
}
