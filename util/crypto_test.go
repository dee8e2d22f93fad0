package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksumAddress(t *testing.T) {
	// EIP-55 reference vectors
	for _, addr := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	} {
		require.EqualValues(t, addr, ChecksumAddress(NormalizeAddress(addr)))
		require.True(t, IsAddress(addr))
	}
	require.EqualValues(t, "not-an-address", ChecksumAddress("not-an-address"))
}

func TestAddressComparison(t *testing.T) {
	require.True(t, SameAddress("0xABCDEF0000000000000000000000000000000001", "0xabcdef0000000000000000000000000000000001"))
	require.False(t, SameAddress("0xabcdef0000000000000000000000000000000001", "0xabcdef0000000000000000000000000000000002"))
	require.False(t, IsAddress("0x123"))
	require.False(t, IsAddress("abcdef00000000000000000000000000000000001"))
	require.True(t, IsAddress("  0xabcdef0000000000000000000000000000000001 "))
}

func TestAmounts(t *testing.T) {
	wei, err := ParseAmountToWei("0.25")
	require.NoError(t, err)
	require.EqualValues(t, "250000000000000000", wei.String())

	wei, err = ParseAmountToWei("3")
	require.NoError(t, err)
	require.EqualValues(t, "3000000000000000000", wei.String())
	require.EqualValues(t, "3", FormatWei(wei))

	wei, err = ParseAmountToWei(".000000000000000001")
	require.NoError(t, err)
	require.EqualValues(t, "1", wei.String())
	require.EqualValues(t, "0.000000000000000001", FormatWei(wei))

	for _, bad := range []string{"", "0", "0.0", "-1", "1e5", "abc", "1.0000000000000000001", "."} {
		_, err = ParseAmountToWei(bad)
		require.Error(t, err, "'%s' must fail", bad)
	}

	_, err = ParseWei("12x")
	require.Error(t, err)
	w, err := ParseWei("1000")
	require.NoError(t, err)
	require.EqualValues(t, 1000, w.Int64())
}

func TestTh(t *testing.T) {
	require.EqualValues(t, "0", Th("0"))
	require.EqualValues(t, "999", Th("999"))
	require.EqualValues(t, "1,000", Th("1000"))
	require.EqualValues(t, "123,456,789", Th("123456789"))
	require.EqualValues(t, "-12,345", Th("-12345"))
}

func TestNormalizeText(t *testing.T) {
	// 'e' + combining acute accent becomes precomposed U+00E9
	require.EqualValues(t, "caf\u00e9", NormalizeText("  cafe\u0301 "))
	require.EqualValues(t, "", NormalizeText(" \n\t"))
}
