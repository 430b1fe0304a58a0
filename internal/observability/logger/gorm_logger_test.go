package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM ledgers WHERE user_id = ? FOR UPDATE":      "SELECT",
		"  insert into payouts (id) values (?)":                   "INSERT",
		"WITH x AS (SELECT 1) UPDATE payouts SET status = ?":      "SELECT",
		"UPDATE payout_accounts SET active = ? WHERE user_id = ?": "UPDATE",
		"": "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}
