package service

// RiskService - бизнес-логика управления рисками
//
// ВАЖНО: Функционал управления рисками реализован в пакете bot, а не в service.
// См. internal/bot/conditional_order_monitor.go и internal/bot/position_coordinator.go:
//
// - ConditionalOrderMonitor: периодический опрос условных ордеров (SL/TP) на
//   биржах, закрытие противоположной ноги при срабатывании, уведомление через
//   bot.Notifier при провале закрытия.
// - PositionCoordinator: открытие/закрытие хедж-позиций, компенсирующий unwind
//   при частичном исполнении одной из ног.
//
// Архитектурное решение:
// Управление рисками работает как часть торгового движка (bot package), а не как
// отдельный сервис, потому что:
// 1. Требует прямого доступа к состоянию позиций и соединениям с биржами
// 2. Должно мгновенно реагировать на срабатывание условных ордеров без лишнего
//    слоя абстракции
// 3. Интегрировано с exchange.Exchange для экстренного закрытия позиций
