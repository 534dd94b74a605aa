package infrastructure

import "shopflow/internal/service/storage/domain"

// ToDomainStorageRecord 将数据库模型转换为领域模型
func ToDomainStorageRecord(model *StorageModel) *domain.StorageRecord {
	if model == nil {
		return nil
	}
	return &domain.StorageRecord{
		ProductID: model.ProductID,
		Quantity:  model.Quantity,
	}
}

// FromDomainStorageRecord 将领域模型转换为数据库模型 (用于插入)
func FromDomainStorageRecord(record *domain.StorageRecord) *StorageModel {
	if record == nil {
		return nil
	}
	return &StorageModel{
		ProductID: record.ProductID,
		Quantity:  record.Quantity,
	}
}

func toDomainStorageRecords(models []StorageModel) []domain.StorageRecord {
	records := make([]domain.StorageRecord, 0, len(models))
	for i := range models {
		records = append(records, *ToDomainStorageRecord(&models[i]))
	}
	return records
}
