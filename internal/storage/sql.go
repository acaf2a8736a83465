package storage

import (
	_ "embed"
)

var (
	//go:embed schema.sql
	initSchemaSQL string

	//go:embed indexes.sql
	initIndexesSQL string
)

const (
	insertDatasetSQL = `
INSERT INTO datasets (spacecraft,
                      species,
                      mode,
                      source,
                      attrs)
VALUES (?, ?, ?, ?, ?)`

	selectDatasetSQL = `
SELECT
    id,
    created_at,
    spacecraft,
    species,
    mode,
    source,
    attrs
FROM datasets
WHERE
    id = ?`

	selectDatasetsSQL = `
SELECT
    id,
    created_at,
    spacecraft,
    species,
    mode,
    source,
    attrs
FROM datasets
ORDER BY id`

	insertChannelSQL = `
INSERT OR REPLACE INTO eye_channels (dataset_id,
                                     position,
                                     sensor,
                                     channel,
                                     energy)
VALUES (?, ?, ?, ?, ?)`

	insertEyeSamplesSQL = `
INSERT INTO eye_samples (dataset_id,
                         timestamp,
                         position,
                         sensor,
                         channel,
                         flux)
VALUES `

	insertSpinSectorSQL = `
INSERT OR REPLACE INTO spin_sectors (dataset_id,
                                     timestamp,
                                     sector)
VALUES (?, ?, ?)`

	insertFieldSQL = `
INSERT OR REPLACE INTO magnetic_field (dataset_id,
                                       timestamp,
                                       b_x,
                                       b_y,
                                       b_z)
VALUES (?, ?, ?, ?, ?)`

	insertProductSQL = `
INSERT INTO products (run_id,
                      dataset_id,
                      kind,
                      axis,
                      attrs)
VALUES (?, ?, ?, ?, ?)`

	insertProductCellsSQL = `
INSERT INTO product_cells (product_id,
                           timestamp,
                           bin,
                           value)
VALUES `

	selectProductSQL = `
SELECT
    id,
    run_id,
    dataset_id,
    kind,
    created_at,
    axis,
    attrs
FROM products
WHERE
    id = ?`

	selectProductsSQL = `
SELECT
    id,
    run_id,
    dataset_id,
    kind,
    created_at,
    axis,
    attrs
FROM products
WHERE
    dataset_id = ?
ORDER BY id`

	selectProductCellsSQL = `
SELECT
    timestamp,
    bin,
    value
FROM product_cells
WHERE
    product_id = ?
ORDER BY timestamp, bin`

	selectChannelsSQL = `
SELECT
    position,
    sensor,
    channel,
    energy
FROM eye_channels
WHERE
    dataset_id = ?
ORDER BY position, sensor, channel`

	selectEyeSamplesSQL = `
SELECT
    timestamp,
    position,
    sensor,
    channel,
    flux
FROM eye_samples
WHERE
    dataset_id = ?
    AND timestamp BETWEEN ? AND ?
ORDER BY position, sensor, timestamp, channel`

	selectSpinSectorsSQL = `
SELECT
    timestamp,
    sector
FROM spin_sectors
WHERE
    dataset_id = ?
    AND timestamp BETWEEN ? AND ?
ORDER BY timestamp`

	selectFieldSQL = `
SELECT
    timestamp,
    b_x,
    b_y,
    b_z
FROM magnetic_field
WHERE
    dataset_id = ?
    AND timestamp BETWEEN ? AND ?
ORDER BY timestamp`
)
