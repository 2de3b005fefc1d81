package cli

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivia-pay/internal/notify"
)

const billNote = `TRIVIA_PAY_REQUEST:{"billId":"bill-1","billName":"Dinner","billNote":"Friday night","share":3.333333,"total":10,"payeeName":"Bob","payeeAddress":"BOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBB","creatorAddress":"ER745AB7H64MC7RO5PEL7YCDQ245JOHVPHN5WHO3FCGPI5Y7GHL5QGAT64","date":"Mar 5, 2024"}`

func TestNoteEncode(t *testing.T) {
	stdout, _, err := execute(t, NewRootCommandWithOpener(noLedger),
		"note", "encode",
		"--bill-id", "bill-1",
		"--name", "Dinner",
		"--bill-note", "Friday night",
		"--share", "3.333333",
		"--total", "10",
		"--payee-name", "Bob",
		"--payee-address", "BOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBB",
		"--creator", escrowAddr,
		"--date", "Mar 5, 2024",
	)
	require.NoError(t, err)
	assert.Equal(t, billNote+"\n", stdout)
}

func TestNoteEncode_JSON(t *testing.T) {
	stdout, _, err := execute(t, NewRootCommandWithOpener(noLedger),
		"--format", "json", "note", "encode", "--name", "Taxi", "--share", "1.5")
	require.NoError(t, err)

	data := decodeResponse(t, stdout).Data.(map[string]interface{})
	raw, err := base64.StdEncoding.DecodeString(data["base64"].(string))
	require.NoError(t, err)
	assert.Equal(t, data["note"], string(raw))
	assert.EqualValues(t, len(raw), data["bytes"])

	payload, ok := notify.Decode(raw)
	require.True(t, ok)
	assert.Equal(t, "Taxi", payload.BillName)
	assert.Equal(t, "1.5", payload.Share.String())
}

func TestNoteEncode_RequiresName(t *testing.T) {
	_, _, err := execute(t, NewRootCommandWithOpener(noLedger), "note", "encode", "--share", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"name" not set`)
}

func TestNoteDecodeGolden(t *testing.T) {
	stdout, _, err := execute(t, NewRootCommandWithOpener(noLedger), "note", "decode", billNote)
	require.NoError(t, err)

	golden(t).Assert(t, "note_decode", []byte(stdout))
}

func TestNoteDecode_Base64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(billNote))

	stdout, _, err := execute(t, NewRootCommandWithOpener(noLedger), "--format", "json", "note", "decode", "--base64", encoded)
	require.NoError(t, err)

	data := decodeResponse(t, stdout).Data.(map[string]interface{})
	assert.Equal(t, "Dinner", data["billName"])
	assert.Equal(t, 3.333333, data["share"])
}

func TestNoteDecode_PartialPayloadShowsPresentFields(t *testing.T) {
	stdout, _, err := execute(t, NewRootCommandWithOpener(noLedger),
		"note", "decode", `TRIVIA_PAY_REQUEST:{"billName":"Lunch","share":2}`)
	require.NoError(t, err)
	assert.Equal(t, "Bill:          Lunch\nShare:         2 ALGO\n", stdout)
}

func TestNoteDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing prefix", []string{"note", "decode", `{"billName":"x"}`}},
		{"malformed json", []string{"note", "decode", "TRIVIA_PAY_REQUEST:{oops"}},
		{"not base64", []string{"note", "decode", "--base64", "***"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := execute(t, NewRootCommandWithOpener(noLedger), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, stderr, ErrCodeInvalidNote)
		})
	}
}
