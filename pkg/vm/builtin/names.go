package builtin

// Canonical builtin function names. They are used for dispatch and as the
// endpoint of every emitted log.
const (
	DCDTLocalMint           = "DCDTLocalMint"
	DCDTLocalBurn           = "DCDTLocalBurn"
	DCDTNFTCreate           = "DCDTNFTCreate"
	DCDTNFTAddQuantity      = "DCDTNFTAddQuantity"
	DCDTNFTBurn             = "DCDTNFTBurn"
	DCDTNFTAddURI           = "DCDTNFTAddURI"
	DCDTNFTUpdateAttributes = "DCDTNFTUpdateAttributes"
	DCDTTransfer            = "DCDTTransfer"
	DCDTNFTTransfer         = "DCDTNFTTransfer"
	MultiDCDTNFTTransfer    = "MultiDCDTNFTTransfer"
	ChangeOwnerAddress      = "ChangeOwnerAddress"
	SetUserName             = "SetUserName"
	ClaimDeveloperRewards   = "ClaimDeveloperRewards"
)
