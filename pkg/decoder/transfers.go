package decoder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/evm-indexer/pkg/model"
)

var (
	// TopicTransfer is shared by ERC20 (value in data) and ERC721 (indexed token id).
	TopicTransfer = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	// TopicTransferSingle is the ERC1155 single transfer event.
	TopicTransferSingle = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))
	// TopicTransferBatch is the ERC1155 batch transfer event. It is kept as a
	// contract event only since one log maps to at most one transfer row.
	TopicTransferBatch = crypto.Keccak256Hash([]byte("TransferBatch(address,address,address,uint256[],uint256[])"))
)

// ExtractTransfer recognizes token transfer logs. The returned transfer carries
// token, parties, amount and standard; the caller fills in the position fields.
func ExtractTransfer(log *model.RawLog) (*model.TokenTransfer, bool) {
	if len(log.Topics) == 0 {
		return nil, false
	}

	switch log.Topics[0] {
	case TopicTransfer:
		switch {
		case len(log.Topics) == 3 && len(log.Data) == 32:
			return &model.TokenTransfer{
				TokenAddress: model.HexAddress(log.Address),
				From:         topicAddress(log.Topics[1]),
				To:           topicAddress(log.Topics[2]),
				Amount:       model.DecimalFromBig(new(big.Int).SetBytes(log.Data)),
				Standard:     model.StandardERC20,
			}, true
		case len(log.Topics) == 4 && len(log.Data) == 0:
			id := model.DecimalFromBig(log.Topics[3].Big())
			return &model.TokenTransfer{
				TokenAddress: model.HexAddress(log.Address),
				From:         topicAddress(log.Topics[1]),
				To:           topicAddress(log.Topics[2]),
				Amount:       model.DecimalFromBig(big.NewInt(1)),
				TokenID:      &id,
				Standard:     model.StandardERC721,
			}, true
		}

	case TopicTransferSingle:
		if len(log.Topics) == 4 && len(log.Data) == 64 {
			id := model.DecimalFromBig(new(big.Int).SetBytes(log.Data[:32]))
			return &model.TokenTransfer{
				TokenAddress: model.HexAddress(log.Address),
				From:         topicAddress(log.Topics[2]),
				To:           topicAddress(log.Topics[3]),
				Amount:       model.DecimalFromBig(new(big.Int).SetBytes(log.Data[32:])),
				TokenID:      &id,
				Standard:     model.StandardERC1155,
			}, true
		}
	}
	return nil, false
}

func topicAddress(topic common.Hash) string {
	return model.HexAddress(common.BytesToAddress(topic.Bytes()))
}
