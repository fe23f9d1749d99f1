package database_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/signature"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	from     = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	to       = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
)

func signedTx(t *testing.T) database.Tx {
	tx, err := database.NewTx(from, to, database.MustParseAmount("1.5"), database.FeeHigh, 1_700_000_000_000)
	if err != nil {
		t.Fatalf("Should be able to construct a transaction: %s", err)
	}

	tx, err = tx.Sign(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to sign a transaction: %s", err)
	}

	return tx
}

// =============================================================================

func Test_SignedTxMutation(t *testing.T) {
	type table struct {
		name   string
		mutate func(tx *database.Tx)
	}

	tt := []table{
		{name: "from", mutate: func(tx *database.Tx) { tx.From = to }},
		{name: "to", mutate: func(tx *database.Tx) { tx.To = from }},
		{name: "amount", mutate: func(tx *database.Tx) { tx.Amount++ }},
		{name: "fee", mutate: func(tx *database.Tx) { tx.Fee++ }},
		{name: "timestamp", mutate: func(tx *database.Tx) { tx.Timestamp++ }},
	}

	t.Log("Given the need to detect a transaction changed after signing.")
	{
		tx := signedTx(t)
		if err := tx.Validate(); err != nil {
			t.Fatalf("\t%s\tShould validate the original transaction : %s", failed, err)
		}
		t.Logf("\t%s\tShould validate the original transaction.", success)

		pk, _ := signature.ToECDSA(pkHexKey)
		pub := signature.FromECDSA(pk).PublicKey

		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen changing the %s field.", testID, tst.name)
				{
					mtx := tx
					tst.mutate(&mtx)

					if signature.Verify(pub, mtx.Message(), mtx.Signature) {
						t.Fatalf("\t%s\tTest %d:\tShould not verify the signature.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould not verify the signature.", success, testID)

					err := mtx.Validate()
					if !errors.Is(err, database.ErrInvalidSignature) {
						t.Fatalf("\t%s\tTest %d:\tShould fail validation with an invalid signature : %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould fail validation with an invalid signature.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_TxFields(t *testing.T) {
	type table struct {
		name   string
		from   string
		to     string
		amount string
		fee    string
		field  string
		err    error
	}

	tt := []table{
		{name: "valid", from: from, to: to, amount: "10", fee: "0.0005"},
		{name: "bad from", from: "dd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4", to: to, amount: "10", fee: "0.0005", field: "from", err: database.ErrInvalidAddress},
		{name: "short to", from: from, to: "0x1234", amount: "10", fee: "0.0005", field: "to", err: database.ErrInvalidAddress},
		{name: "zero amount", from: from, to: to, amount: "0", fee: "0.0005", field: "amount", err: database.ErrInvalidAmount},
		{name: "huge amount", from: from, to: to, amount: "1000000.000001", fee: "0.0005", field: "amount", err: database.ErrInvalidAmount},
		{name: "max amount", from: from, to: to, amount: "1000000", fee: "1"},
		{name: "zero fee", from: from, to: to, amount: "1", fee: "0", field: "fee", err: database.ErrInvalidFee},
		{name: "big fee", from: from, to: to, amount: "1", fee: "1.000001", field: "fee", err: database.ErrInvalidFee},
	}

	t.Log("Given the need to validate transaction fields.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen creating a transaction with %s.", testID, tst.name)
				{
					_, err := database.NewTx(tst.from, tst.to, database.MustParseAmount(tst.amount), database.MustParseAmount(tst.fee), 1)

					if tst.err == nil {
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould accept the transaction : %s", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould accept the transaction.", success, testID)
						return
					}

					var ve *database.ValidationError
					if !errors.As(err, &ve) || ve.Field != tst.field || !errors.Is(err, tst.err) {
						t.Fatalf("\t%s\tTest %d:\tShould reject field %s with %v, got %v.", failed, testID, tst.field, tst.err, err)
					}
					t.Logf("\t%s\tTest %d:\tShould reject field %s.", success, testID, tst.field)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Payload(t *testing.T) {
	tx := signedTx(t)

	p, err := database.NewPayload("Alpha", []database.Tx{tx})
	if err != nil {
		t.Fatalf("Should be able to build a payload: %s", err)
	}

	data, err := p.Encode()
	if err != nil {
		t.Fatalf("Should be able to encode a payload: %s", err)
	}

	got, ok := database.DecodePayload(data)
	if !ok {
		t.Fatalf("Should be able to decode the payload.")
	}

	if got.MinerID != "Alpha" || len(got.Txs) != 1 || got.Txs[0] != tx {
		t.Fatalf("Should get back the same payload: %+v", got)
	}

	if err := got.Validate(); err != nil {
		t.Fatalf("Should validate the merkle root: %s", err)
	}

	got.Txs[0].Signature = "0x00"
	if err := got.Validate(); err == nil {
		t.Fatalf("Should detect a changed transaction list.")
	}

	if _, ok := database.DecodePayload("just some notes"); ok {
		t.Fatalf("Should not decode free text data.")
	}
}
