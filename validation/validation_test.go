package validation

import (
	"testing"

	creditgate "github.com/mark3labs/creditgate-go"
)

func TestValidateWalletAddress(t *testing.T) {
	tests := []struct {
		name    string
		family  creditgate.Family
		address string
		wantErr bool
	}{
		{"valid evm", creditgate.FamilyEVM, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", false},
		{"evm too short", creditgate.FamilyEVM, "0x8335", true},
		{"evm no prefix", creditgate.FamilyEVM, "833589fCD6eDb6E08f4c7C32D4f71b54bdA0291300", true},
		{"evm bad hex", creditgate.FamilyEVM, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA0291z", true},
		{"valid solana", creditgate.FamilySolana, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", false},
		{"solana forbidden chars", creditgate.FamilySolana, "0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl", true},
		{"solana too short", creditgate.FamilySolana, "EPjFWdd5", true},
		{"empty", creditgate.FamilyEVM, "", true},
		{"unknown family", creditgate.FamilyUnknown, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWalletAddress(tt.family, tt.address)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWalletAddress(%v, %q) error = %v, wantErr %v", tt.family, tt.address, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTxRef(t *testing.T) {
	evmHash := "0x" + "ab12cd34" + "ef56ab78" + "90abcdef" + "12345678" + "9abcdef0" + "fedcba98" + "76543210" + "00ff00ff"
	solanaSig := "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"

	tests := []struct {
		name    string
		family  creditgate.Family
		txRef   string
		wantErr bool
	}{
		{"valid evm hash", creditgate.FamilyEVM, evmHash, false},
		{"evm address length", creditgate.FamilyEVM, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", true},
		{"valid solana signature", creditgate.FamilySolana, solanaSig, false},
		{"solana mint length", creditgate.FamilySolana, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", true},
		{"empty", creditgate.FamilySolana, "", true},
		{"unknown family", creditgate.FamilyUnknown, evmHash, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTxRef(tt.family, tt.txRef)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTxRef(%v, %q) error = %v, wantErr %v", tt.family, tt.txRef, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTokenAddress(t *testing.T) {
	tests := []struct {
		name    string
		family  creditgate.Family
		address string
		wantErr bool
	}{
		{"evm contract", creditgate.FamilyEVM, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", false},
		{"evm native", creditgate.FamilyEVM, creditgate.NativeAsset, false},
		{"solana mint", creditgate.FamilySolana, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", false},
		{"solana native", creditgate.FamilySolana, creditgate.NativeAsset, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTokenAddress(tt.family, tt.address)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTokenAddress(%v, %q) error = %v, wantErr %v", tt.family, tt.address, err, tt.wantErr)
			}
		})
	}
}
